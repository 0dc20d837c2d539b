package store

// Schema creates the election tables. It is idempotent and applied by the
// migrate command and by integration tests.
//
// nominations.position is a value, not a foreign key: deleting a position
// must not touch ledger facts recorded against its title.
const Schema = `
CREATE TABLE IF NOT EXISTS elections (
    id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    starts_at TIMESTAMPTZ NOT NULL,
    ends_at TIMESTAMPTZ NOT NULL,
    max_nominations_per_member INTEGER NOT NULL CHECK (max_nominations_per_member >= 1),
    status TEXT NOT NULL CHECK (status IN ('draft', 'open', 'closed', 'archived')),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CHECK (starts_at < ends_at)
);

CREATE TABLE IF NOT EXISTS positions (
    id UUID PRIMARY KEY,
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    display_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS positions_election_title_uq
    ON positions (election_id, lower(title));

CREATE TABLE IF NOT EXISTS nominations (
    id UUID PRIMARY KEY,
    election_id UUID NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
    nominator_id UUID NOT NULL,
    nominee_id UUID NOT NULL,
    position TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS nominations_nominator_position_uq
    ON nominations (election_id, nominator_id, lower(position));

CREATE INDEX IF NOT EXISTS nominations_election_nominator_idx
    ON nominations (election_id, nominator_id);

CREATE TABLE IF NOT EXISTS election_outbox (
    id UUID PRIMARY KEY,
    event_type TEXT NOT NULL,
    election_id UUID NOT NULL,
    payload JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS election_outbox_pending_idx
    ON election_outbox (created_at) WHERE published_at IS NULL;
`
