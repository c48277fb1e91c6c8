package identity

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Contact is what notifications need to address a user.
type Contact struct {
	UserID      snowflake.ID
	DisplayName string
	Email       string
}

// Resolver looks up user contact details. Lookups are best effort; a missing
// user yields a zero Contact, not an error.
type Resolver interface {
	Resolve(ctx context.Context, userID snowflake.ID) (Contact, error)
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// DBResolver reads from the host application's users table. The table is
// owned by the application this engine is embedded in, so a failed read is
// logged and swallowed.
type DBResolver struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewResolver(p Params) *DBResolver {
	return &DBResolver{db: p.DB, log: p.Log.Named("identity.resolver")}
}

var _ Resolver = (*DBResolver)(nil)

func (r *DBResolver) Resolve(ctx context.Context, userID snowflake.ID) (Contact, error) {
	if userID == 0 {
		return Contact{}, nil
	}
	var row struct {
		DisplayName string
		Email       string
	}
	err := r.db.WithContext(ctx).
		Raw(`SELECT display_name, email FROM users WHERE id = ? LIMIT 1`, userID).
		Scan(&row).Error
	if err != nil {
		r.log.Warn("user lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return Contact{UserID: userID}, nil
	}
	return Contact{UserID: userID, DisplayName: row.DisplayName, Email: row.Email}, nil
}

var Module = fx.Module("identity",
	fx.Provide(NewResolver),
	fx.Provide(func(r *DBResolver) Resolver { return r }),
)
