package store

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrDocumentNotFound = errors.New("DOCUMENT_NOT_FOUND")
	ErrTitleTaken       = errors.New("TITLE_TAKEN")
	ErrDeadlineExceeded = errors.New("DEADLINE_EXCEEDED")
)

// InitMySQL 打开连接并自动建表
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Document{}, &DocumentSnapshot{}); err != nil {
		return nil, err
	}
	return db, nil
}

// newGormLogger 只输出慢查询和真正的错误；查不到记录是正常分支，不打日志
func newGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}

// 1062 = duplicate key
func isDuplicateKey(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func translate(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDeadlineExceeded
	}
	return err
}
