package store

// Schema v1 - collection tables
//
// file rows are unique per (source, url) by protocol: AddFiles deletes the
// old row before inserting, so no UNIQUE constraint is declared here.
// source NULL means the local collection.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS source (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL,
  friendlyname TEXT NOT NULL DEFAULT '',
  lastop TEXT NOT NULL DEFAULT '',
  isonline INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS artist (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  sortname TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS album (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  artist INTEGER NOT NULL REFERENCES artist(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  sortname TEXT NOT NULL,
  UNIQUE (artist, sortname)
);

CREATE TABLE IF NOT EXISTS track (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  artist INTEGER NOT NULL REFERENCES artist(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  sortname TEXT NOT NULL,
  UNIQUE (artist, sortname)
);

CREATE TABLE IF NOT EXISTS file (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source INTEGER REFERENCES source(id) ON DELETE CASCADE,
  url TEXT NOT NULL,
  size INTEGER NOT NULL DEFAULT 0,
  mtime INTEGER NOT NULL DEFAULT 0,
  md5 TEXT NOT NULL DEFAULT '',
  mimetype TEXT NOT NULL DEFAULT '',
  duration INTEGER NOT NULL DEFAULT 0,
  bitrate INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_file_source_url ON file(source, url);

CREATE TABLE IF NOT EXISTS file_join (
  file INTEGER PRIMARY KEY REFERENCES file(id) ON DELETE CASCADE,
  artist INTEGER NOT NULL REFERENCES artist(id),
  album INTEGER REFERENCES album(id),
  track INTEGER NOT NULL REFERENCES track(id),
  albumpos INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_file_join_track ON file_join(track);
CREATE INDEX IF NOT EXISTS idx_file_join_artist ON file_join(artist);

-- Append-only key/value attributes per track
CREATE TABLE IF NOT EXISTS track_attributes (
  id INTEGER NOT NULL REFERENCES track(id) ON DELETE CASCADE,
  k TEXT NOT NULL,
  v TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_track_attributes_id ON track_attributes(id);

-- Redacted, serialized mutating commands in commit order
CREATE TABLE IF NOT EXISTS oplog (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source INTEGER REFERENCES source(id) ON DELETE CASCADE,
  guid TEXT UNIQUE NOT NULL,
  command TEXT NOT NULL,
  singleton INTEGER NOT NULL DEFAULT 0,
  json TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_oplog_source ON oplog(source, id);
`
