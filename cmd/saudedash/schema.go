package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/schema"
	"github.com/koustreak/saudedash/internal/warehouse"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the warehouse tables and print them as YAML",
	Long: `schema connects to the warehouse, inspects every star schema table
and prints columns, foreign keys, missing tables and the resolved description
columns as YAML.`,
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db := openWarehouse(ctx, cfg, log)
	defer db.Close()

	resolver := schema.NewResolver(log, warehouse.DescriptionTargets()...)

	var info *schema.SchemaInfo
	err = database.WithConn(ctx, db, func(c database.Conn) error {
		var r schema.Reader = schema.NewPgIntrospector(c)
		var err error
		info, err = r.InspectTables(ctx, schema.DefaultSchema, warehouse.Tables)
		return err
	})
	if err != nil {
		return err
	}
	if err := resolver.Warm(ctx, db); err != nil {
		log.WarnWith("description columns not resolved", err, nil)
	}
	info.Descriptions = resolver.Resolved()

	return printYAML(cmd, info)
}

func printYAML(cmd *cobra.Command, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
	return err
}
