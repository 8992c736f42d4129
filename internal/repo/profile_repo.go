package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/likegate/internal/model"
	"github.com/xxxsen/likegate/internal/pkg/dbutil"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

const profileTable = "profiles"

const upsertPrivilegeSQL = `
INSERT INTO profiles (user_id, privileged, last_action_at, action_claimed_at, ctime, mtime)
VALUES ($1, $2, 0, 0, $3, $3)
ON CONFLICT (user_id) DO UPDATE SET privileged = EXCLUDED.privileged, mtime = EXCLUDED.mtime`

// The claim only lands while last_action_at still holds the value the caller
// evaluated the cooldown against and no fresh claim is held.
const claimActionSQL = `
INSERT INTO profiles (user_id, privileged, last_action_at, action_claimed_at, ctime, mtime)
VALUES ($1, 0, 0, $2, $2, $2)
ON CONFLICT (user_id) DO UPDATE SET action_claimed_at = EXCLUDED.action_claimed_at, mtime = EXCLUDED.mtime
WHERE profiles.last_action_at = $3 AND (profiles.action_claimed_at = 0 OR profiles.action_claimed_at < $4)`

const completeActionSQL = `
UPDATE profiles
SET last_action_at = GREATEST(last_action_at, $2),
    action_claimed_at = CASE WHEN action_claimed_at = $3 THEN 0 ELSE action_claimed_at END,
    mtime = $2
WHERE user_id = $1`

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Get(ctx context.Context, userID int64) (*model.Profile, error) {
	where := map[string]interface{}{"user_id": userID}
	sqlStr, args, err := builder.BuildSelect(profileTable, where, []string{"user_id", "privileged", "last_action_at", "action_claimed_at", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	var p model.Profile
	var privileged int
	if err := rows.Scan(&p.UserID, &privileged, &p.LastActionAt, &p.ActionClaimedAt, &p.Ctime, &p.Mtime); err != nil {
		return nil, err
	}
	p.Privileged = privileged != 0
	return &p, nil
}

func (r *ProfileRepo) SetPrivileged(ctx context.Context, userID int64, privileged bool, now int64) error {
	_, err := r.db.ExecContext(ctx, upsertPrivilegeSQL, userID, dbutil.BoolToInt(privileged), now)
	return err
}

func (r *ProfileRepo) ClaimAction(ctx context.Context, userID, expectedLast, claimAt, staleBefore int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, claimActionSQL, userID, claimAt, expectedLast, staleBefore)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *ProfileRepo) CompleteAction(ctx context.Context, userID, claimAt, now int64) error {
	result, err := r.db.ExecContext(ctx, completeActionSQL, userID, now, claimAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) ReleaseAction(ctx context.Context, userID, claimAt int64) error {
	where := map[string]interface{}{"user_id": userID, "action_claimed_at": claimAt}
	sqlStr, args, err := builder.BuildUpdate(profileTable, where, map[string]interface{}{"action_claimed_at": 0})
	if err != nil {
		return err
	}
	_, err = dbutil.ExecAffected(ctx, r.db, sqlStr, args)
	return err
}
