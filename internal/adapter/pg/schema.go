package pg

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
  id              BIGSERIAL PRIMARY KEY,
  owner           TEXT        NOT NULL,
  symbol          TEXT        NOT NULL,
  quantity        BIGINT      NOT NULL CHECK (quantity > 0),
  reference_total BIGINT      NOT NULL CHECK (reference_total >= 0),
  side            TEXT        NOT NULL,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS orders_side_id ON orders (side, id);

CREATE TABLE IF NOT EXISTS balances (
  account TEXT   NOT NULL,
  symbol  TEXT   NOT NULL,
  units   BIGINT NOT NULL DEFAULT 0 CHECK (units >= 0),
  PRIMARY KEY (account, symbol)
);

CREATE TABLE IF NOT EXISTS transfers (
  id         UUID PRIMARY KEY,
  from_acct  TEXT        NOT NULL,
  to_acct    TEXT        NOT NULL,
  symbol     TEXT        NOT NULL,
  units      BIGINT      NOT NULL CHECK (units > 0),
  memo       TEXT        NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS fills (
  id          BIGSERIAL PRIMARY KEY,
  maker_id    BIGINT      NOT NULL,
  maker_owner TEXT        NOT NULL,
  maker_side  TEXT        NOT NULL,
  taker_id    BIGINT      NOT NULL DEFAULT 0,
  taker_owner TEXT        NOT NULL,
  quantity    BIGINT      NOT NULL CHECK (quantity > 0),
  reference   BIGINT      NOT NULL CHECK (reference >= 0),
  price       NUMERIC     NOT NULL,
  maker_done  BOOLEAN     NOT NULL,
  executed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS fills_maker_id ON fills (maker_id);
CREATE INDEX IF NOT EXISTS fills_taker_id ON fills (taker_id) WHERE taker_id <> 0;
`

// Migrate creates the tables used by PgRepo, Ledger and UnitOfWork if they
// are missing.
func (p *PgRepo) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}
