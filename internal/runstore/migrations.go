package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    persona TEXT NOT NULL,
    worker_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    compression REAL NOT NULL,
    sim_start TIMESTAMP,
    sim_end TIMESTAMP,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP,
    actions_total INTEGER DEFAULT 0,
    actions_failed INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_persona ON runs(persona);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    request_id TEXT NOT NULL,
    sim_time TIMESTAMP NOT NULL,
    kind TEXT NOT NULL,
    target TEXT,
    duration_min INTEGER,
    source TEXT,
    reason TEXT,
    success BOOLEAN,
    error TEXT,
    duration_ms INTEGER,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_actions_run_id ON actions(run_id);
CREATE INDEX IF NOT EXISTS idx_actions_kind ON actions(kind);
`
