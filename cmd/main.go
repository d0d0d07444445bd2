package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/author"
	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/follower"
	"github.com/socialdist/fednode/identity"
	"github.com/socialdist/fednode/inbox"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/post"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/stream"
	"github.com/socialdist/fednode/visibility"
)

var (
	version      = "unknown"
	buildMachine = "unknown"
	buildTime    = "unknown"
	goVersion    = "unknown"
)

const apiRoot = "/api"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	e := echo.New()

	configPaths := []string{}
	configPath := os.Getenv("FEDNODE_CONFIG")
	if configPath != "" {
		configPaths = append(configPaths, configPath)
	}

	additionalConfigs := os.Getenv("FEDNODE_CONFIGS")
	if additionalConfigs != "" {
		for v := range strings.SplitSeq(additionalConfigs, ":") {
			configPaths = append(configPaths, v)
		}
	}

	if len(configPaths) == 0 {
		configPaths = append(configPaths, "/etc/fednode/config.yaml")
	}

	config, err := loadConfig(configPaths)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if config.Server.PrettyLog {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	log.Info().
		Str("version", version).
		Str("buildMachine", buildMachine).
		Str("buildTime", buildTime).
		Str("goVersion", goVersion).
		Str("hostApiUrl", config.Node.HostAPIURL).
		Msg("fednode starting")

	e.HidePort = true
	e.HideBanner = true

	if config.Server.EnableTrace {
		cleanup, err := setupTraceProvider(config.Server.TraceEndpoint, "fednode", version)
		if err != nil {
			panic(err)
		}
		defer cleanup()

		skipper := otelecho.WithSkipper(
			func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/health"
			},
		)
		e.Use(otelecho.Middleware("fednode", skipper))
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(echoprometheus.NewMiddleware("fednode"))
	e.Use(middleware.Recover())

	gormLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,                   // Enable color
		},
	)
	gormConfig := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	}

	var db *gorm.DB
	switch config.Server.Driver {
	case "sqlite":
		db, err = store.OpenSQLite(config.Server.Dsn, gormConfig)
	default:
		db, err = gorm.Open(postgres.Open(config.Server.Dsn), gormConfig)
	}
	if err != nil {
		log.Fatal().Err(err).Str("driver", config.Server.Driver).Msg("failed to connect database")
	}
	sqlDB, err := db.DB() // for pinging
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer sqlDB.Close()

	err = db.Use(tracing.NewPlugin(
		tracing.WithDBName(config.Server.Driver),
	))
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	mc := memcache.New(config.Server.MemcachedAddr)
	defer mc.Close()

	log.Info().Msg("start migrate")
	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Server.RedisAddr,
		Password: "", // no password set
		DB:       config.Server.RedisDB,
	})
	err = redisotel.InstrumentTracing(
		rdb,
		redisotel.WithAttributes(
			attribute.KeyValue{
				Key:   "db.name",
				Value: attribute.StringValue("redis"),
			},
		),
	)
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	storeService := store.NewStore(db)
	if err := seed(context.Background(), storeService, config); err != nil {
		log.Fatal().Err(err).Msg("failed to seed nodes")
	}

	nodes := node.NewRegistry(storeService)
	client := fedclient.NewClient(mc, nodes, config.Node, fedclient.NewMetrics())
	publisher := stream.NewPublisher(rdb)
	identityService := identity.NewService(storeService)
	authService := auth.NewService(storeService)

	followerService := follower.NewService(storeService, client, nodes)
	evaluator := visibility.NewEvaluator(followerService)
	inboxService := inbox.NewService(storeService, client, nodes, identityService, publisher)
	postService := post.NewService(storeService, client, nodes, evaluator, followerService, inboxService)
	authorService := author.NewService(storeService, client, config.Node)

	followerHandler := follower.NewHandler(followerService)
	inboxHandler := inbox.NewHandler(inboxService, publisher)
	postHandler := post.NewHandler(postService, apiRoot)
	authorHandler := author.NewHandler(authorService, apiRoot)

	api := e.Group(apiRoot, authService.Identify)

	api.POST("/auth", authorHandler.Register)
	api.GET("/auth", authorHandler.Login, auth.Restrict(auth.ISREGISTERED))

	api.GET("/authors", authorHandler.List)
	api.GET("/authors/all", authorHandler.List)
	api.GET("/authors/:author_id", authorHandler.Get)
	api.PUT("/authors/:author_id", authorHandler.Update, auth.Restrict(auth.ISHUMAN))
	api.GET("/authors/:author_id/liked", authorHandler.Liked)

	api.GET("/authors/:author_id/followers", followerHandler.List)
	api.GET("/authors/:author_id/followers/:foreign_author_id", followerHandler.Get)
	api.PUT("/authors/:author_id/followers/:foreign_author_id", followerHandler.Put, auth.Restrict(auth.ISHUMAN))
	api.DELETE("/authors/:author_id/followers/:foreign_author_id", followerHandler.Delete, auth.Restrict(auth.ISREGISTERED))

	api.GET("/authors/:author_id/inbox", inboxHandler.Get, auth.Restrict(auth.ISREGISTERED))
	api.POST("/authors/:author_id/inbox", inboxHandler.Post, auth.Restrict(auth.ISREGISTERED))
	api.DELETE("/authors/:author_id/inbox", inboxHandler.Delete, auth.Restrict(auth.ISHUMAN))
	api.GET("/authors/:author_id/inbox/stream", inboxHandler.Stream, auth.Restrict(auth.ISHUMAN))

	api.GET("/authors/:author_id/posts", postHandler.List)
	api.POST("/authors/:author_id/posts", postHandler.Create, auth.Restrict(auth.ISHUMAN))
	api.GET("/authors/:author_id/posts/public", postHandler.Public)
	api.GET("/authors/:author_id/posts/following", postHandler.Feed, auth.Restrict(auth.ISREGISTERED))
	api.GET("/authors/:author_id/posts/:post_id", postHandler.Get)
	api.PUT("/authors/:author_id/posts/:post_id", postHandler.Update, auth.Restrict(auth.ISHUMAN))
	api.DELETE("/authors/:author_id/posts/:post_id", postHandler.Delete, auth.Restrict(auth.ISHUMAN))
	api.GET("/authors/:author_id/posts/:post_id/image", postHandler.Image)
	api.GET("/authors/:author_id/posts/:post_id/comments", postHandler.ListComments)
	api.POST("/authors/:author_id/posts/:post_id/comments", postHandler.CreateComment, auth.Restrict(auth.ISHUMAN))
	api.GET("/authors/:author_id/posts/:post_id/comments/:comment_id", postHandler.GetComment)
	api.GET("/authors/:author_id/posts/:post_id/likes", postHandler.ListLikes)
	api.GET("/authors/:author_id/posts/:post_id/comments/:comment_id/likes", postHandler.ListLikes)

	e.GET("/health", func(c echo.Context) (err error) {
		ctx := c.Request().Context()

		err = storeService.Ping(ctx)
		if err != nil {
			return c.String(http.StatusInternalServerError, "db error")
		}

		err = rdb.Ping(ctx).Err()
		if err != nil {
			return c.String(http.StatusInternalServerError, "redis error")
		}

		return c.String(http.StatusOK, "ok")
	})

	e.GET("/metrics", echoprometheus.NewHandler())

	port := ":8000"
	envport := os.Getenv("FEDNODE_PORT")
	if envport != "" {
		port = ":" + envport
	}

	log.Info().Str("port", port).Msg("listening")
	if err := e.Start(port); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
