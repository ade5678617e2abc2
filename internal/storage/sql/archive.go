package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"agencysite/backend/internal/domain"
)

// deliveredSubmission 已投递提交的归档表模型
type deliveredSubmission struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"size:120;not null"`
	Email       string    `gorm:"size:254;not null;index"`
	Message     string    `gorm:"type:text;not null"`
	QueuedAt    time.Time `gorm:"index"` // 零值表示直发，未经过发件箱
	Attempts    int       `gorm:"not null;default:0"`
	DeliveredAt time.Time `gorm:"not null;index"`
}

// TableName 指定归档表名
func (deliveredSubmission) TableName() string {
	return "delivered_submissions"
}

// Archive 基于 GORM 的归档仓库，支持 MySQL 和 PostgreSQL。
type Archive struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Config 归档数据库连接配置
type Config struct {
	Type            string // "mysql" 或 "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewArchive 创建归档仓库并建立数据库连接
func NewArchive(cfg Config) (*Archive, error) {
	var driverName string
	switch cfg.Type {
	case "mysql":
		driverName = "mysql"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}

	sqlDB, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var dialector gorm.Dialector
	if cfg.Type == "mysql" {
		dialector = gormmysql.New(gormmysql.Config{Conn: sqlDB})
	} else {
		dialector = gormpostgres.New(gormpostgres.Config{Conn: sqlDB})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	return &Archive{db: db, sqlDB: sqlDB}, nil
}

// Migrate 创建归档表结构
func (a *Archive) Migrate() error {
	if err := a.db.AutoMigrate(&deliveredSubmission{}); err != nil {
		return fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	return nil
}

// ArchiveDelivered 记录一条确认投递成功的提交
func (a *Archive) ArchiveDelivered(ctx context.Context, sub *domain.Submission, deliveredAt time.Time) error {
	record := deliveredSubmission{
		ID:          sub.ID,
		Name:        sub.Name,
		Email:       sub.Email,
		Message:     sub.Message,
		QueuedAt:    sub.QueuedAt,
		Attempts:    sub.Attempts,
		DeliveredAt: deliveredAt,
	}
	if err := a.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to archive submission: %w", err)
	}
	return nil
}

// ListDelivered 按投递时间倒序返回最近归档的提交
func (a *Archive) ListDelivered(ctx context.Context, limit int) ([]domain.Submission, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []deliveredSubmission
	if err := a.db.WithContext(ctx).
		Order("delivered_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list archived submissions: %w", err)
	}

	subs := make([]domain.Submission, 0, len(records))
	for _, r := range records {
		subs = append(subs, domain.Submission{
			ID:       r.ID,
			Name:     r.Name,
			Email:    r.Email,
			Message:  r.Message,
			QueuedAt: r.QueuedAt,
			Attempts: r.Attempts,
		})
	}
	return subs, nil
}

// Health 检查数据库连接状态
func (a *Archive) Health() error {
	return a.sqlDB.Ping()
}

// Close 关闭数据库连接
func (a *Archive) Close() error {
	return a.sqlDB.Close()
}
