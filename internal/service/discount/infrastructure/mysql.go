package infrastructure

import (
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pricepoint/internal/pkg/bootstrap"
)

// MySQLDSN 根据配置构造 DSN, 时间统一按 UTC 解析
func MySQLDSN(cfg bootstrap.MySQLConfig) string {
	dsn := mysqldriver.NewConfig()
	dsn.Net = "tcp"
	dsn.Addr = cfg.Addr
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.DBName = cfg.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// NewMySQL 打开 gorm 连接, 按需执行自动迁移
func NewMySQL(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(MySQLDSN(cfg)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate 创建或更新活动相关的表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&CampaignModel{}, &ScopeConfigModel{}, &RuleModel{}, &BuyGetRuleModel{}); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}
