package postgres

// SQL statements for the event, progress and mission stores.

const (
	// querySaveEvent inserts an event with per-user idempotency.
	// The composite key (user_id, id) prevents duplicate events; the
	// RETURNING clause retrieves the auto-generated ingest_seq.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for duplicates.
	querySaveEvent = `
		INSERT INTO events (
			id, user_id, type, module, timestamp, ingested_at, data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, id) DO NOTHING
		RETURNING ingest_seq
	`

	// queryRetrieveUserEvents serves the bounded recent-history read,
	// newest first.
	queryRetrieveUserEvents = `
		SELECT
			id, user_id, type, module, timestamp, ingested_at, data, ingest_seq
		FROM events
		WHERE user_id = $1
		ORDER BY ingest_seq DESC
		LIMIT $2
	`

	// queryGetProgress reads one progress record by its key.
	queryGetProgress = `
		SELECT
			mission_id, user_id, state, current_value, target_value,
			claim_count, streak_count, last_event_at, last_completed_at, updated_at
		FROM mission_progress
		WHERE mission_id = $1 AND user_id = $2
	`

	// queryUpsertProgress writes the full record atomically. The engine
	// serializes read-evaluate-write per (mission, user) key, so the upsert
	// only has to be atomic per statement.
	queryUpsertProgress = `
		INSERT INTO mission_progress (
			mission_id, user_id, state, current_value, target_value,
			claim_count, streak_count, last_event_at, last_completed_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (mission_id, user_id) DO UPDATE SET
			state = EXCLUDED.state,
			current_value = EXCLUDED.current_value,
			target_value = EXCLUDED.target_value,
			claim_count = EXCLUDED.claim_count,
			streak_count = EXCLUDED.streak_count,
			last_event_at = EXCLUDED.last_event_at,
			last_completed_at = EXCLUDED.last_completed_at,
			updated_at = EXCLUDED.updated_at
	`

	// queryDeleteProgress removes one record; used by explicit resets only.
	queryDeleteProgress = `
		DELETE FROM mission_progress
		WHERE mission_id = $1 AND user_id = $2
	`

	// queryGetMission reads one mission definition, rule JSON included.
	queryGetMission = `
		SELECT id, name, active, rule
		FROM missions
		WHERE id = $1
	`

	// queryListActiveMissions reads the active mission catalog. Rules are
	// stored as JSON documents; decoding happens in the adapter.
	queryListActiveMissions = `
		SELECT id, name, active, rule
		FROM missions
		WHERE active = TRUE
		ORDER BY id
	`
)
