package storage

const sqliteSchema = `
-- Locally registered accounts. Unused when identity is hosted.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS habits (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    frequency TEXT NOT NULL CHECK (frequency IN ('daily', 'weekly', 'monthly')),
    start_date TEXT NOT NULL,
    end_date TEXT,
    time_of_day TEXT,
    color TEXT NOT NULL,
    icon TEXT NOT NULL,
    is_archived BOOLEAN NOT NULL DEFAULT 0,
    goal INTEGER NOT NULL CHECK (goal > 0),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS habits_user_created ON habits (user_id, created_at);

-- One entry per habit per day. Rows are never written with an empty status.
CREATE TABLE IF NOT EXISTS habit_progress (
    habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
    date TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('completed', 'failed', 'skipped')),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (habit_id, date)
);

CREATE VIEW IF NOT EXISTS habit_statistics AS
SELECT
    h.id AS habit_id,
    h.user_id AS user_id,
    h.name AS name,
    COUNT(CASE WHEN p.status = 'completed' THEN 1 END) AS completed_count,
    COUNT(CASE WHEN p.status = 'failed' THEN 1 END) AS failed_count,
    COUNT(CASE WHEN p.status = 'skipped' THEN 1 END) AS skipped_count,
    CASE WHEN COUNT(p.habit_id) = 0 THEN 0.0
         ELSE CAST(COUNT(CASE WHEN p.status = 'completed' THEN 1 END) AS REAL) / COUNT(p.habit_id)
    END AS completion_rate
FROM habits h
LEFT JOIN habit_progress p ON p.habit_id = h.id
GROUP BY h.id, h.user_id, h.name;
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS habits (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    frequency TEXT NOT NULL CHECK (frequency IN ('daily', 'weekly', 'monthly')),
    start_date TEXT NOT NULL,
    end_date TEXT,
    time_of_day TEXT,
    color TEXT NOT NULL,
    icon TEXT NOT NULL,
    is_archived BOOLEAN NOT NULL DEFAULT FALSE,
    goal INTEGER NOT NULL CHECK (goal > 0),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS habits_user_created ON habits (user_id, created_at);

CREATE TABLE IF NOT EXISTS habit_progress (
    habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
    date TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('completed', 'failed', 'skipped')),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (habit_id, date)
);

CREATE OR REPLACE VIEW habit_statistics AS
SELECT
    h.id AS habit_id,
    h.user_id AS user_id,
    h.name AS name,
    COUNT(*) FILTER (WHERE p.status = 'completed') AS completed_count,
    COUNT(*) FILTER (WHERE p.status = 'failed') AS failed_count,
    COUNT(*) FILTER (WHERE p.status = 'skipped') AS skipped_count,
    CASE WHEN COUNT(p.habit_id) = 0 THEN 0.0::float8
         ELSE (COUNT(*) FILTER (WHERE p.status = 'completed'))::float8 / COUNT(p.habit_id)
    END AS completion_rate
FROM habits h
LEFT JOIN habit_progress p ON p.habit_id = h.id
GROUP BY h.id, h.user_id, h.name;
`
