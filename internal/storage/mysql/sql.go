package mysql

const insertModerationSQL = `
INSERT INTO moderation_log
  (entry_id, review_id, desired, outcome, state_version, created_at)
VALUES
  (?, ?, ?, ?, ?, ?)
`

// Newest first; matches idx_moderation_review_created.
const listModerationSQL = `
SELECT entry_id, review_id, desired, outcome, state_version, created_at
FROM moderation_log
WHERE review_id = ?
ORDER BY created_at DESC, entry_id DESC
LIMIT ?
`
