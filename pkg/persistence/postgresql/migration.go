package postgresql

// migrations returns the schema migrations for the PostgreSQL persistence
// layer, keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS process_definitions (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE IF NOT EXISTS workflow_templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				workflow_class TEXT NOT NULL,
				category TEXT,
				template JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS process_audits (
				execution_id TEXT PRIMARY KEY,
				process_id TEXT NOT NULL,
				tenant_id TEXT,
				status TEXT NOT NULL,
				execution JSONB NOT NULL,
				recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_process_audits_process_id
				ON process_audits (process_id, recorded_at DESC);
		`,
	}
}
