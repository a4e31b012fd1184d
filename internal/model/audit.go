package model

import "time"

// NotDeleted is the soft-delete sentinel: rows that are live carry the zero
// timestamp in deleted_at rather than NULL, so unique constraints spanning
// (tenant_id, name, deleted_at) keep working across delete/recreate cycles.
var NotDeleted = time.Time{}
