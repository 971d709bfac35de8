// cmd/discount-service/main.go
package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"pricepoint/internal/pkg/bootstrap"
	"pricepoint/internal/pkg/mq"
	"pricepoint/internal/pkg/redis"
	"pricepoint/internal/service/discount/application"
	"pricepoint/internal/service/discount/application/engine"
	"pricepoint/internal/service/discount/infrastructure"
	"pricepoint/internal/service/discount/infrastructure/rule"
	"pricepoint/internal/service/discount/interfaces"
	"pricepoint/internal/zookeeper"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	infra := cfg.Infra
	tracer := otel.Tracer(cfg.App.Name)

	// 1. 评估引擎
	ruleEngine, err := rule.New(cfg.App.RuleEngine)
	if err != nil {
		log.Fatal().Err(err).Str("rule_engine", cfg.App.RuleEngine).Msg("failed to create rule engine")
	}
	eng := engine.New(
		engine.WithTracer(otel.Tracer("pricepoint/discount-engine")),
		engine.WithRuleEngine(ruleEngine),
		engine.WithScale(cfg.App.MoneyScale),
	)

	// 2. 驱动端口的基础设施
	db, err := infrastructure.NewMySQL(infra.MySQL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo := infrastructure.NewGormCampaignRepository(db)

	rdb, err := redis.NewClient(infra.Redis.Addrs, infra.Redis.Password, infra.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	cache := infrastructure.NewRedisCampaignCache(rdb.GetClient())

	resultWriter := mq.NewKafkaWriter(infra.Kafka.Brokers, infra.Kafka.ResultTopic)
	campaignWriter := mq.NewKafkaWriter(infra.Kafka.Brokers, infra.Kafka.CampaignTopic)
	deadLetterWriter := mq.NewKafkaWriter(infra.Kafka.Brokers, infra.Kafka.DeadLetterTopic)
	publisher := infrastructure.NewKafkaEventPublisher(resultWriter, campaignWriter)

	zkConn, err := zookeeper.Connect(infra.Zookeeper.Servers, infra.Zookeeper.SessionTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to zookeeper")
	}

	metrics := infrastructure.NewPrometheusRecorder(nil)
	hub := interfaces.NewAuditHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// 3. 应用服务
	svc := application.NewDiscountService(eng, repo, tracer,
		application.WithCache(cache, infra.Redis.CacheTTL),
		application.WithPublisher(publisher),
		application.WithAuditBroadcaster(hub),
		application.WithMetrics(metrics),
		application.WithBatchLimit(cfg.App.BatchConcurrency),
	)
	admin := application.NewCampaignAdminService(eng, repo, tracer,
		application.WithAdminCache(cache),
		application.WithAdminPublisher(publisher),
		application.WithLocker(infrastructure.NewZkLocker(zkConn)),
	)

	// 4. 驱动适配器
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumer := interfaces.NewCampaignEventConsumer(
		mq.NewKafkaReader(infra.Kafka.Brokers, infra.Kafka.CampaignTopic, infra.Kafka.ConsumerGroup),
		svc,
		mq.NewFailureHandler(deadLetterWriter),
	)
	if err := consumer.Start(consumerCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start campaign event consumer")
	}
	handler := interfaces.NewDiscountHandler(svc, admin, hub)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			handler.RegisterRoutes(appCtx.Mux)
		},
		Cleanup: func(ctx context.Context) {
			stopConsumer()
			consumer.Stop(ctx)
			stopHub()
			for _, w := range []interface{ Close() error }{resultWriter, campaignWriter, deadLetterWriter} {
				if err := w.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close kafka writer")
				}
			}
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis client")
			}
			zkConn.Close()
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	})
}
