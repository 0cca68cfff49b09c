package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// PGStore persists marketplace state in Postgres. Entities are stored as
// JSONB documents next to the columns used for lookups.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects, initializes schema, and optionally seeds fixtures.
func NewPGStore(ctx context.Context, dsn string, seed bool) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if seed {
		if err := s.seedFixtures(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Pool exposes the connection pool so sibling stores can share it.
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PGStore) Close() { s.pool.Close() }

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS hp_agents (
  id TEXT PRIMARY KEY,
  doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS hp_humans (
  id TEXT PRIMARY KEY,
  doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS hp_jobs (
  id TEXT PRIMARY KEY,
  agent_id TEXT NOT NULL,
  human_id TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS hp_listings (
  id TEXT PRIMARY KEY,
  agent_id TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS hp_applications (
  id TEXT PRIMARY KEY,
  listing_id TEXT NOT NULL,
  human_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS hp_messages (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS hp_counters (
  name TEXT PRIMARY KEY,
  value INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS hp_payment_proofs (
  proof TEXT PRIMARY KEY,
  used_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS hp_payment_intents (
  agent_id TEXT PRIMARY KEY,
  doc JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hp_jobs_agent ON hp_jobs(agent_id, status);
CREATE INDEX IF NOT EXISTS idx_hp_jobs_human ON hp_jobs(human_id, status);
CREATE INDEX IF NOT EXISTS idx_hp_listings_agent ON hp_listings(agent_id);
CREATE INDEX IF NOT EXISTS idx_hp_applications_listing ON hp_applications(listing_id);
CREATE INDEX IF NOT EXISTS idx_hp_messages_job ON hp_messages(job_id, created_at);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init marketplace schema: %w", err)
	}
	return nil
}

func (s *PGStore) seedFixtures(ctx context.Context) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM hp_humans`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return Seed(ctx, s)
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

// getDoc loads one JSONB document and locks its row for the transaction.
func getDoc[T any](ctx context.Context, tx pgx.Tx, table, keyCol, id string) (T, error) {
	var out T
	var raw []byte
	err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE %s=$1 FOR UPDATE`, table, keyCol), id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load %s: %w", table, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", table, err)
	}
	return out, nil
}

func listDocs[T any](ctx context.Context, tx pgx.Tx, query string, args ...any) ([]T, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *pgTx) GetAgent(ctx context.Context, id string) (hiring.Agent, error) {
	return getDoc[hiring.Agent](ctx, t.tx, "hp_agents", "id", id)
}

func (t *pgTx) PutAgent(ctx context.Context, a hiring.Agent) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO hp_agents (id, doc) VALUES ($1,$2)
ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc`, a.ID, doc)
	return err
}

func (t *pgTx) GetHuman(ctx context.Context, id string) (hiring.Human, error) {
	return getDoc[hiring.Human](ctx, t.tx, "hp_humans", "id", id)
}

func (t *pgTx) PutHuman(ctx context.Context, h hiring.Human) error {
	doc, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO hp_humans (id, doc) VALUES ($1,$2)
ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc`, h.ID, doc)
	return err
}

func (t *pgTx) ListHumans(ctx context.Context) ([]hiring.Human, error) {
	out, err := listDocs[hiring.Human](ctx, t.tx, `SELECT doc FROM hp_humans`)
	if err != nil {
		return nil, fmt.Errorf("list humans: %w", err)
	}
	sortHumans(out)
	return out, nil
}

func (t *pgTx) GetJob(ctx context.Context, id string) (hiring.Job, error) {
	return getDoc[hiring.Job](ctx, t.tx, "hp_jobs", "id", id)
}

func (t *pgTx) PutJob(ctx context.Context, j hiring.Job) error {
	doc, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO hp_jobs (id, agent_id, human_id, status, created_at, doc) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, doc=EXCLUDED.doc`,
		j.ID, j.AgentID, j.HumanID, string(j.Status), j.Timeline.CreatedAt, doc)
	return err
}

func (t *pgTx) ListJobs(ctx context.Context, f JobFilter) ([]hiring.Job, error) {
	out, err := listDocs[hiring.Job](ctx, t.tx, `
SELECT doc FROM hp_jobs
WHERE ($1 = '' OR agent_id = $1) AND ($2 = '' OR human_id = $2) AND ($3 = '' OR status = $3)`,
		f.AgentID, f.HumanID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	sortJobs(out)
	return out, nil
}

func (t *pgTx) GetListing(ctx context.Context, id string) (hiring.Listing, error) {
	return getDoc[hiring.Listing](ctx, t.tx, "hp_listings", "id", id)
}

func (t *pgTx) PutListing(ctx context.Context, l hiring.Listing) error {
	doc, err := json.Marshal(l)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO hp_listings (id, agent_id, status, created_at, doc) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, doc=EXCLUDED.doc`,
		l.ID, l.AgentID, string(l.Status), l.CreatedAt, doc)
	return err
}

func (t *pgTx) ListListings(ctx context.Context, agentID string) ([]hiring.Listing, error) {
	out, err := listDocs[hiring.Listing](ctx, t.tx,
		`SELECT doc FROM hp_listings WHERE ($1 = '' OR agent_id = $1)`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	sortListings(out)
	return out, nil
}

func (t *pgTx) GetApplication(ctx context.Context, id string) (hiring.Application, error) {
	return getDoc[hiring.Application](ctx, t.tx, "hp_applications", "id", id)
}

func (t *pgTx) PutApplication(ctx context.Context, a hiring.Application) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO hp_applications (id, listing_id, human_id, created_at, doc) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc`,
		a.ID, a.ListingID, a.HumanID, a.CreatedAt, doc)
	return err
}

func (t *pgTx) ListApplications(ctx context.Context, listingID string) ([]hiring.Application, error) {
	out, err := listDocs[hiring.Application](ctx, t.tx,
		`SELECT doc FROM hp_applications WHERE listing_id = $1`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	sortApplications(out)
	return out, nil
}

func (t *pgTx) AppendMessage(ctx context.Context, m hiring.Message) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO hp_messages (id, job_id, created_at, doc) VALUES ($1,$2,$3,$4)`,
		m.ID, m.JobID, m.CreatedAt, doc)
	return err
}

func (t *pgTx) ListMessages(ctx context.Context, jobID string) ([]hiring.Message, error) {
	out, err := listDocs[hiring.Message](ctx, t.tx,
		`SELECT doc FROM hp_messages WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

func (t *pgTx) Counter(ctx context.Context, name string) (int, error) {
	var v int
	err := t.tx.QueryRow(ctx, `SELECT value FROM hp_counters WHERE name=$1`, name).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (t *pgTx) IncrementCounter(ctx context.Context, name string, limit int) (int, bool, error) {
	if limit <= 0 {
		v, err := t.Counter(ctx, name)
		return v, false, err
	}
	var v int
	err := t.tx.QueryRow(ctx, `
INSERT INTO hp_counters (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = hp_counters.value + 1
WHERE hp_counters.value < $2
RETURNING value`, name, limit).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		cur, cerr := t.Counter(ctx, name)
		return cur, false, cerr
	}
	if err != nil {
		return 0, false, fmt.Errorf("increment counter: %w", err)
	}
	return v, true, nil
}

func (t *pgTx) MarkProofUsed(ctx context.Context, network, txHash string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO hp_payment_proofs (proof) VALUES ($1) ON CONFLICT (proof) DO NOTHING`,
		proofKey(network, txHash))
	if err != nil {
		return false, fmt.Errorf("record payment proof: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ReleaseProof(ctx context.Context, network, txHash string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM hp_payment_proofs WHERE proof=$1`, proofKey(network, txHash))
	return err
}

func (t *pgTx) PutPaymentIntent(ctx context.Context, p hiring.PaymentIntent) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO hp_payment_intents (agent_id, doc) VALUES ($1,$2)
ON CONFLICT (agent_id) DO UPDATE SET doc=EXCLUDED.doc`, p.AgentID, doc)
	return err
}

func (t *pgTx) GetPaymentIntent(ctx context.Context, agentID string) (hiring.PaymentIntent, error) {
	return getDoc[hiring.PaymentIntent](ctx, t.tx, "hp_payment_intents", "agent_id", agentID)
}
