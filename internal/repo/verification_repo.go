package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/likegate/internal/model"
	"github.com/xxxsen/likegate/internal/pkg/dbutil"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

const verificationTable = "verifications"

var verificationFields = []string{"id", "code_hash", "user_id", "target_id", "region", "chat_id", "ctime", "expires_at", "verified", "verified_at", "processed"}

type VerificationRepo struct {
	db *sql.DB
}

func NewVerificationRepo(db *sql.DB) *VerificationRepo {
	return &VerificationRepo{db: db}
}

func (r *VerificationRepo) Create(ctx context.Context, v *model.Verification) error {
	data := map[string]interface{}{
		"id":          v.ID,
		"code_hash":   v.CodeHash,
		"user_id":     v.UserID,
		"target_id":   v.TargetID,
		"region":      v.Region,
		"chat_id":     v.ChatID,
		"ctime":       v.Ctime,
		"expires_at":  v.ExpiresAt,
		"verified":    dbutil.BoolToInt(v.Verified),
		"verified_at": v.VerifiedAt,
		"processed":   dbutil.BoolToInt(v.Processed),
	}
	sqlStr, args, err := builder.BuildInsert(verificationTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *VerificationRepo) GetByCode(ctx context.Context, code model.VerificationCode) (*model.Verification, error) {
	return r.getOne(ctx, map[string]interface{}{"code_hash": code.Hash()})
}

func (r *VerificationRepo) LatestByUserTarget(ctx context.Context, userID int64, targetID string) (*model.Verification, error) {
	where := map[string]interface{}{
		"user_id":   userID,
		"target_id": targetID,
		"_orderby":  "ctime desc, expires_at desc",
		"_limit":    []uint{0, 1},
	}
	return r.getOne(ctx, where)
}

// MarkVerified flips the record to verified only while it is still
// unverified and unexpired. It reports false, without mutating, otherwise.
func (r *VerificationRepo) MarkVerified(ctx context.Context, code model.VerificationCode, now int64) (bool, error) {
	where := map[string]interface{}{
		"code_hash":     code.Hash(),
		"verified":      0,
		"expires_at >=": now,
	}
	update := map[string]interface{}{"verified": 1, "verified_at": now}
	sqlStr, args, err := builder.BuildUpdate(verificationTable, where, update)
	if err != nil {
		return false, err
	}
	affected, err := dbutil.ExecAffected(ctx, r.db, sqlStr, args)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *VerificationRepo) MarkProcessed(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildUpdate(verificationTable, map[string]interface{}{"id": id}, map[string]interface{}{"processed": 1})
	if err != nil {
		return err
	}
	affected, err := dbutil.ExecAffected(ctx, r.db, sqlStr, args)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// ExpireNow retires a pending code so it can no longer be verified.
func (r *VerificationRepo) ExpireNow(ctx context.Context, id string, now int64) error {
	where := map[string]interface{}{"id": id, "verified": 0}
	sqlStr, args, err := builder.BuildUpdate(verificationTable, where, map[string]interface{}{"expires_at": now - 1})
	if err != nil {
		return err
	}
	_, err = dbutil.ExecAffected(ctx, r.db, sqlStr, args)
	return err
}

func (r *VerificationRepo) DeleteExpiredUnverified(ctx context.Context, before int64) (int64, error) {
	where := map[string]interface{}{"verified": 0, "expires_at <": before}
	sqlStr, args, err := builder.BuildDelete(verificationTable, where)
	if err != nil {
		return 0, err
	}
	return dbutil.ExecAffected(ctx, r.db, sqlStr, args)
}

func (r *VerificationRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Verification, error) {
	sqlStr, args, err := builder.BuildSelect(verificationTable, where, verificationFields)
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
	var v model.Verification
	var verified, processed int
	if err := rows.Scan(&v.ID, &v.CodeHash, &v.UserID, &v.TargetID, &v.Region, &v.ChatID, &v.Ctime, &v.ExpiresAt, &verified, &v.VerifiedAt, &processed); err != nil {
		return nil, err
	}
	v.Verified = verified != 0
	v.Processed = processed != 0
	return &v, nil
}
