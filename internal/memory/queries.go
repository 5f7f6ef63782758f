package memory

const (
	queryInsertCoreFact = `INSERT INTO core_facts (owner_id, fact, created_at) VALUES (?, ?, ?)`

	queryInsertCoreEmbedding = `INSERT OR REPLACE INTO core_fact_embeddings (fact_id, embedding) VALUES (?, ?)`

	queryListCoreFacts = `
		SELECT id, owner_id, fact, created_at
		FROM core_facts
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC`

	querySimilarCoreFacts = `
		SELECT f.id, f.owner_id, f.fact, f.created_at, vec_distance_cosine(e.embedding, ?) AS distance
		FROM core_facts f
		JOIN core_fact_embeddings e ON e.fact_id = f.id
		WHERE f.owner_id = ?
		ORDER BY distance ASC, f.created_at DESC, f.id DESC
		LIMIT ?`

	queryCoreGist = `
		SELECT e.embedding
		FROM core_facts f
		JOIN core_fact_embeddings e ON e.fact_id = f.id
		WHERE f.owner_id = ?
		ORDER BY f.created_at DESC, f.id DESC
		LIMIT 1`

	queryWorkingRows = `
		SELECT id, bootstrap
		FROM working_entries
		WHERE owner_id = ?
		ORDER BY history_order ASC`

	querySetWorkingOrder = `UPDATE working_entries SET history_order = ? WHERE id = ?`

	queryFlipWorkingOrders = `
		UPDATE working_entries
		SET history_order = -history_order
		WHERE owner_id = ? AND history_order < 0`

	queryInsertWorkingEntry = `
		INSERT INTO working_entries (owner_id, text, history_order, created_at)
		VALUES (?, ?, 1, ?)`

	queryBootstrapWorkingEntry = `
		INSERT OR IGNORE INTO working_entries (owner_id, text, history_order, created_at, bootstrap)
		VALUES (?, '', 1, ?, 1)`

	queryInsertWorkingEmbedding = `INSERT OR REPLACE INTO working_embeddings (entry_id, embedding) VALUES (?, ?)`

	queryWorkingCurrent = `
		SELECT id, owner_id, text, history_order, created_at
		FROM working_entries
		WHERE owner_id = ? AND history_order = 1`

	queryWorkingHistory = `
		SELECT id, owner_id, text, history_order, created_at
		FROM working_entries
		WHERE owner_id = ?
		ORDER BY history_order ASC`

	queryWorkingCurrentEmbedding = `
		SELECT e.embedding
		FROM working_entries w
		JOIN working_embeddings e ON e.entry_id = w.id
		WHERE w.owner_id = ? AND w.history_order = 1`

	querySimilarWorking = `
		SELECT w.id, w.owner_id, w.text, w.history_order, w.created_at, vec_distance_cosine(e.embedding, ?) AS distance
		FROM working_entries w
		JOIN working_embeddings e ON e.entry_id = w.id
		WHERE w.owner_id = ? AND w.text != ''
		ORDER BY distance ASC, w.created_at DESC, w.id DESC
		LIMIT ?`

	queryInsertEpisode = `INSERT INTO episodes (owner_id, text, metadata, created_at) VALUES (?, ?, ?, ?)`

	queryInsertEpisodeEmbedding = `INSERT OR REPLACE INTO episode_embeddings (episode_id, embedding) VALUES (?, ?)`

	querySimilarEpisodes = `
		SELECT ep.id, ep.owner_id, ep.text, ep.metadata, ep.created_at, vec_distance_cosine(e.embedding, ?) AS distance
		FROM episodes ep
		JOIN episode_embeddings e ON e.episode_id = ep.id
		WHERE ep.owner_id = ? AND ep.created_at >= ?
		ORDER BY distance ASC, ep.created_at DESC, ep.id DESC
		LIMIT ?`

	queryRecentEpisodes = `
		SELECT id, owner_id, text, metadata, created_at
		FROM episodes
		WHERE owner_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	queryListEpisodes = `
		SELECT id, owner_id, text, metadata, created_at
		FROM episodes
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC`

	queryExpiredEpisodeIDs = `
		SELECT id FROM episodes
		WHERE created_at < ?
		ORDER BY id ASC
		LIMIT ?`

	// episodes within threshold of a reference vector from another tier
	queryEpisodesNear = `
		SELECT ep.id
		FROM episodes ep
		JOIN episode_embeddings e ON e.episode_id = ep.id
		WHERE ep.owner_id = ? AND vec_distance_cosine(e.embedding, ?) <= ?`

	// recent episodes with a strictly newer near-duplicate; equal timestamps
	// fall back to the higher id
	querySupersededEpisodes = `
		SELECT a.id
		FROM episodes a
		JOIN episode_embeddings ae ON ae.episode_id = a.id
		WHERE a.owner_id = ? AND a.created_at >= ?
		  AND EXISTS (
			SELECT 1
			FROM episodes b
			JOIN episode_embeddings be ON be.episode_id = b.id
			WHERE b.owner_id = a.owner_id
			  AND b.id != a.id
			  AND (b.created_at > a.created_at OR (b.created_at = a.created_at AND b.id > a.id))
			  AND vec_distance_cosine(ae.embedding, be.embedding) <= ?
		  )
		ORDER BY a.id ASC`

	queryActiveOwners = `SELECT DISTINCT owner_id FROM episodes WHERE created_at >= ? ORDER BY owner_id`

	queryDeleteOwnerCoreEmbeddings    = `DELETE FROM core_fact_embeddings WHERE fact_id IN (SELECT id FROM core_facts WHERE owner_id = ?)`
	queryDeleteOwnerCoreFacts         = `DELETE FROM core_facts WHERE owner_id = ?`
	queryDeleteOwnerWorkingEmbeddings = `DELETE FROM working_embeddings WHERE entry_id IN (SELECT id FROM working_entries WHERE owner_id = ?)`
	queryDeleteOwnerWorking           = `DELETE FROM working_entries WHERE owner_id = ?`
	queryDeleteOwnerEpisodeEmbeddings = `DELETE FROM episode_embeddings WHERE episode_id IN (SELECT id FROM episodes WHERE owner_id = ?)`
	queryDeleteOwnerEpisodes          = `DELETE FROM episodes WHERE owner_id = ?`
)
