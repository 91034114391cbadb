package crm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	errx "github.com/crm-insights/server/internal/core/error"
	logx "github.com/crm-insights/server/pkg/logger"
)

// Config binds the DATA_* environment variables.
type Config struct {
	Dir               string `envconfig:"DATA_DIR" default:"data"`
	AccountsFile      string `envconfig:"DATA_ACCOUNTS_FILE" default:"Accounts.csv"`
	ContactsFile      string `envconfig:"DATA_CONTACTS_FILE" default:"Contacts.csv"`
	LeadsFile         string `envconfig:"DATA_LEADS_FILE" default:"Leads.csv"`
	OpportunitiesFile string `envconfig:"DATA_OPPORTUNITIES_FILE" default:"Opportunites.csv"`
}

// Loader reads the four CSV sources once and hands out the same snapshot afterwards.
// A Loader never re-reads its files; build a new one to pick up changes.
type Loader struct {
	cfg Config

	mu   sync.Mutex
	done bool
	data *Dataset
	err  error
}

// NewLoader returns a Loader for the given file layout.
func NewLoader(cfg Config) *Loader {
	return &Loader{cfg: cfg}
}

// Load parses the sources on first call and returns the cached result afterwards.
// Concurrent first calls block until the single load finishes. Any unreadable
// file fails the whole load and that failure is cached too, except when the
// caller's context ended: the next call retries.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.data, l.err
	}

	data, err := l.load(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	l.data, l.err, l.done = data, err, true
	return data, err
}

func (l *Loader) load(ctx context.Context) (*Dataset, error) {
	start := time.Now()

	var opps, leads, accounts, contacts []Record
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range []struct {
		name string
		dst  *[]Record
	}{
		{l.cfg.OpportunitiesFile, &opps},
		{l.cfg.LeadsFile, &leads},
		{l.cfg.AccountsFile, &accounts},
		{l.cfg.ContactsFile, &contacts},
	} {
		src := src
		g.Go(func() error {
			rows, err := readFile(ctx, filepath.Join(l.cfg.Dir, src.name))
			if err != nil {
				return err
			}
			*src.dst = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logx.Error().Err(err).Str("dir", l.cfg.Dir).Msg("CRM data load failed")
		return nil, errx.WrapLoad(err)
	}

	ds := NewDataset(NormalizeOpportunities(opps), leads, accounts, contacts)
	logx.Info().
		Int("opportunities", len(ds.Opportunities)).
		Int("leads", len(ds.Leads)).
		Int("accounts", len(ds.Accounts)).
		Int("contacts", len(ds.Contacts)).
		Dur("elapsed", time.Since(start)).
		Msg("CRM data loaded")
	return ds, nil
}

func readFile(ctx context.Context, path string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := ParseRecords(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}
