package postgres

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/koustreak/saudedash/internal/errs"
)

// Pooling is the connection pooler mode implied by a hosted endpoint.
type Pooling int

const (
	PoolingNone        Pooling = iota // direct connection to the server
	PoolingSession                    // pooler host, port 5432
	PoolingTransaction                // pooler host, port 6543
)

func (p Pooling) String() string {
	switch p {
	case PoolingSession:
		return "session"
	case PoolingTransaction:
		return "transaction"
	default:
		return "none"
	}
}

const (
	transactionPoolerPort = 6543
	defaultPort           = 5432
)

var hostedSuffixes = []string{".supabase.co", ".supabase.com"}

// Endpoint is a parsed connection URL plus what it implies for a hosted
// Postgres provider.
type Endpoint struct {
	// URL is the connection string handed to pgx, with sslmode=require
	// added for hosted endpoints that did not set one.
	URL     string
	Host    string
	Port    int
	Hosted  bool
	Pooling Pooling
}

// ParseEndpoint inspects raw. Key/value DSNs are passed through untouched.
func ParseEndpoint(raw string) (*Endpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errs.New(errs.ErrKindConfig, "DATABASE_URL is not set")
	}
	if !strings.HasPrefix(raw, "postgres://") && !strings.HasPrefix(raw, "postgresql://") {
		return &Endpoint{URL: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid DATABASE_URL", err)
	}

	ep := &Endpoint{URL: raw, Host: u.Hostname(), Port: defaultPort}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "invalid DATABASE_URL port", err)
		}
		ep.Port = n
	}

	ep.Hosted = isHostedHost(ep.Host)
	if !ep.Hosted {
		return ep, nil
	}

	if strings.Contains(ep.Host, ".pooler.") {
		if ep.Port == transactionPoolerPort {
			ep.Pooling = PoolingTransaction
		} else {
			ep.Pooling = PoolingSession
		}
	}

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
		u.RawQuery = q.Encode()
		ep.URL = u.String()
	}
	return ep, nil
}

func isHostedHost(host string) bool {
	host = strings.ToLower(host)
	for _, s := range hostedSuffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}
