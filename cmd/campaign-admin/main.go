// cmd/campaign-admin/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"pricepoint/internal/pkg/bootstrap"
	"pricepoint/internal/pkg/httpclient"
	"pricepoint/internal/pkg/mq"
	"pricepoint/internal/pkg/nacos"
	"pricepoint/internal/service/discount/application"
	"pricepoint/internal/service/discount/application/engine"
	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/infrastructure"
	"pricepoint/internal/service/discount/infrastructure/rule"
	"pricepoint/internal/zookeeper"
)

const usage = `usage: campaign-admin <command> [flags] [file]

commands:
  validate   check a catalog without writing anything
  import     validate and save a catalog directly to the campaign database
  push       upload a catalog through a running discount-service, which validates it
  list       list the campaigns stored by a running discount-service
  evaluate   evaluate a cart (JSON evaluate request) against a running discount-service
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := bootstrap.Init()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "validate":
		err = runValidate(os.Stdout, args)
	case "import":
		err = runImport(ctx, cfg, os.Stdout, args)
	case "push":
		err = runPush(ctx, cfg, os.Stdout, args)
	case "list":
		err = runList(ctx, cfg, os.Stdout, args)
	case "evaluate":
		err = runEvaluate(ctx, cfg, os.Stdout, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg("campaign-admin failed")
		os.Exit(1)
	}
}

func newEngine() (*engine.Engine, error) {
	ruleEngine, err := rule.New(bootstrap.GetCurrentConfig().App.RuleEngine)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.WithRuleEngine(ruleEngine)), nil
}

func catalogArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", errors.New("exactly one file argument is required")
	}
	return fs.Arg(0), nil
}

// runValidate 校验目录中的每个活动并输出违规项
func runValidate(out io.Writer, args []string) error {
	path, err := catalogArg(flag.NewFlagSet("validate", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	campaigns, err := infrastructure.LoadCatalogFile(path)
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}
	admin := application.NewCampaignAdminService(eng, nil, otel.Tracer("campaign-admin"))

	failed := 0
	defaults := 0
	for _, c := range campaigns {
		if c.IsDefault && c.IsActive {
			defaults++
		}
		if err := admin.Validate(c); err != nil {
			failed++
			printViolations(out, c.ID, err)
			continue
		}
		fmt.Fprintf(out, "%-24s ok\n", c.ID)
	}
	if defaults > 1 {
		fmt.Fprintf(out, "warning: %d active default campaigns, only the last saved stays default\n", defaults)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d campaigns are invalid", failed, len(campaigns))
	}
	return nil
}

func printViolations(out io.Writer, id string, err error) {
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		fmt.Fprintf(out, "%-24s %v\n", id, err)
		return
	}
	fmt.Fprintf(out, "%-24s invalid\n", id)
	for _, v := range cfgErr.Violations {
		fmt.Fprintf(out, "    %s: %s\n", v.Path, v.Message)
	}
}

// runImport 直接写库, 写入受 zk 锁保护并发布变更事件
func runImport(ctx context.Context, cfg *bootstrap.Config, out io.Writer, args []string) error {
	path, err := catalogArg(flag.NewFlagSet("import", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	campaigns, err := infrastructure.LoadCatalogFile(path)
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}

	db, err := infrastructure.NewMySQL(cfg.Infra.MySQL)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
	if err != nil {
		return err
	}
	defer zkConn.Close()
	resultWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.ResultTopic)
	campaignWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.CampaignTopic)
	defer resultWriter.Close()
	defer campaignWriter.Close()

	admin := application.NewCampaignAdminService(eng, infrastructure.NewGormCampaignRepository(db), otel.Tracer("campaign-admin"),
		application.WithLocker(infrastructure.NewZkLocker(zkConn)),
		application.WithAdminPublisher(infrastructure.NewKafkaEventPublisher(resultWriter, campaignWriter)),
	)
	report, err := admin.ImportCatalog(ctx, campaigns)
	fmt.Fprintf(out, "saved: %s\n", strings.Join(report.Saved, ", "))
	if len(report.Failed) > 0 {
		fmt.Fprintf(out, "failed: %s\n", strings.Join(report.Failed, ", "))
	}
	return err
}

// remoteFlags 是访问运行中服务的公共参数
type remoteFlags struct {
	addr    *string
	service *string
	timeout *time.Duration
}

func newRemoteFlags(fs *flag.FlagSet) remoteFlags {
	return remoteFlags{
		addr:    fs.String("addr", "", "discount-service base URL, e.g. http://localhost:8090"),
		service: fs.String("service", "discount-service", "service name to discover through Nacos when -addr is empty"),
		timeout: fs.Duration("timeout", 10*time.Second, "per-request timeout"),
	}
}

// baseURL 优先使用 -addr, 否则通过 Nacos 发现服务地址
func (f remoteFlags) baseURL(cfg *bootstrap.Config) (string, error) {
	if addr := strings.TrimRight(*f.addr, "/"); addr != "" {
		return addr, nil
	}
	return discover(cfg, *f.service)
}

// runPush 通过 HTTP 上传目录, 服务地址可由 Nacos 发现
func runPush(ctx context.Context, cfg *bootstrap.Config, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	remote := newRemoteFlags(fs)
	path, err := catalogArg(fs, args)
	if err != nil {
		return err
	}
	baseURL, err := remote.baseURL(cfg)
	if err != nil {
		return err
	}

	campaigns, err := infrastructure.LoadCatalogFile(path)
	if err != nil {
		return err
	}
	return pushCatalog(ctx, httpclient.NewClient(otel.Tracer("campaign-admin")), baseURL, *remote.timeout, campaigns, out)
}

func runList(ctx context.Context, cfg *bootstrap.Config, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	remote := newRemoteFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	baseURL, err := remote.baseURL(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *remote.timeout)
	defer cancel()
	return listCampaigns(ctx, httpclient.NewClient(otel.Tracer("campaign-admin")), baseURL, out)
}

func listCampaigns(ctx context.Context, client *httpclient.Client, baseURL string, out io.Writer) error {
	var campaigns []*domain.Campaign
	if err := client.GetJSON(ctx, baseURL+"/v1/campaigns", &campaigns); err != nil {
		return err
	}
	for _, c := range campaigns {
		flags := make([]string, 0, 2)
		if c.IsActive {
			flags = append(flags, "active")
		}
		if c.IsDefault {
			flags = append(flags, "default")
		}
		fmt.Fprintf(out, "%-24s v%-4d %-28s %s\n", c.ID, c.Version, c.Name, strings.Join(flags, ","))
	}
	return nil
}

// runEvaluate 读取一个评估请求 (JSON) 并打印服务返回的结果
func runEvaluate(ctx context.Context, cfg *bootstrap.Config, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	remote := newRemoteFlags(fs)
	path, err := catalogArg(fs, args)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read request %s", path)
	}
	var req application.EvaluateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errors.Wrapf(err, "parse request %s", path)
	}
	baseURL, err := remote.baseURL(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *remote.timeout)
	defer cancel()
	return evaluateCart(ctx, httpclient.NewClient(otel.Tracer("campaign-admin")), baseURL, &req, out)
}

func evaluateCart(ctx context.Context, client *httpclient.Client, baseURL string, req *application.EvaluateRequest, out io.Writer) error {
	var result domain.DiscountResult
	if err := client.PostJSON(ctx, baseURL+"/v1/discounts/evaluate", req, &result); err != nil {
		return err
	}
	fmt.Fprintf(out, "status:    %s\n", result.Status)
	fmt.Fprintf(out, "subtotal:  %s\n", result.OriginalSubtotal.StringFixed(2))
	fmt.Fprintf(out, "discount:  %s\n", result.TotalDiscount.StringFixed(2))
	fmt.Fprintf(out, "total:     %s\n", result.FinalTotal.StringFixed(2))
	for _, r := range result.AppliedRules {
		fmt.Fprintf(out, "  %-28s %-10s %-22s %s\n", r.RuleName, r.Tier, r.ProductID, r.Amount.StringFixed(2))
	}
	return nil
}

func pushCatalog(ctx context.Context, client *httpclient.Client, baseURL string, timeout time.Duration, campaigns []*domain.Campaign, out io.Writer) error {
	failed := 0
	for _, c := range campaigns {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		var resp application.SaveCampaignResponse
		err := client.PutJSON(reqCtx, baseURL+"/v1/campaigns", c, &resp)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "%-24s %v\n", c.ID, err)
			continue
		}
		fmt.Fprintf(out, "%-24s saved (version %d)\n", resp.ID, resp.Version)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d campaigns were rejected", failed, len(campaigns))
	}
	return nil
}

func discover(cfg *bootstrap.Config, service string) (string, error) {
	serverConfigs, err := nacos.ParseServerConfigs(cfg.Infra.Nacos.ServerAddrs)
	if err != nil {
		return "", err
	}
	client, err := nacos.NewNacosClientWithConfigs(serverConfigs, nacos.NewClientConfig(cfg.Infra.Nacos.Namespace), cfg.Infra.Nacos.Group)
	if err != nil {
		return "", err
	}
	ip, port, err := client.DiscoverServiceInstance(service)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", ip, port), nil
}
