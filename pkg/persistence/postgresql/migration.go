package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create runs table
			CREATE TABLE runs (
				id VARCHAR(255) PRIMARY KEY,
				target_id VARCHAR(255) NOT NULL,
				token_set BOOLEAN NOT NULL DEFAULT false,
				entity_types JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'cancelled', 'failed')),
				error_message TEXT,
				report JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_target_id ON runs(target_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_created_at ON runs(created_at);
		`,
		2: `
			-- Create reference_records table: ids discovered while a run executes
			CREATE TABLE reference_records (
				seq BIGSERIAL,
				run_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(255) NOT NULL,
				instance_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (run_id, entity_type, instance_id)
			);

			CREATE INDEX idx_reference_records_run_seq ON reference_records(run_id, seq);
		`,
	}
}
