package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/auth"
	"github.com/formvibe/formvibe/internal/geo"
	"github.com/formvibe/formvibe/internal/httpapi"
	"github.com/formvibe/formvibe/internal/ratelimit"
	"github.com/formvibe/formvibe/internal/storage"
	"github.com/formvibe/formvibe/internal/webhook"
)

const (
	commandUseName              = "server"
	commandShortDescription     = "Run the FormVibe server"
	commandLongDescription      = "Launch the FormVibe form backend HTTP server"
	missingConfigurationMessage = "missing required configuration"
	loggerCreationErrorMessage  = "logger"
	logEventListening           = "listening"
	logFieldAddress             = "addr"

	flagNameApplicationAddress     = "app-addr"
	flagNameDatabaseDriver         = "db-driver"
	flagNameDatabaseDataSourceName = "db-dsn"
	flagNameInternalSecret         = "internal-secret"
	flagNameSessionTokenSecret     = "jwt-secret"
	flagNameRedisAddress           = "redis-addr"
	flagNameRateLimitPolicy        = "rate-limit-policy"
	flagNameRateLimitMaxRequests   = "rate-limit-max"
	flagNameRateLimitWindow        = "rate-limit-window"
	flagNameGeoIPDatabasePath      = "geoip-db"
	flagNamePublicBaseURL          = "public-base-url"
	flagNameForwardURL             = "forward-url"

	flagUsageApplicationAddress     = "address for the HTTP server to listen on"
	flagUsageDatabaseDriver         = "database driver (sqlite or postgres)"
	flagUsageDatabaseDataSourceName = "database connection string"
	flagUsageInternalSecret         = "shared secret for the internal submission endpoint"
	flagUsageSessionTokenSecret     = "signing secret for dashboard session tokens"
	flagUsageRedisAddress           = "redis address for the submission rate limiter (empty uses in-memory limiting)"
	flagUsageRateLimitPolicy        = "behavior when the rate limiter backend is unavailable (allow or deny)"
	flagUsageRateLimitMaxRequests   = "maximum submissions per form and client IP within the window"
	flagUsageRateLimitWindow        = "rate limit window duration"
	flagUsageGeoIPDatabasePath      = "path to a MaxMind GeoIP2 country database (empty disables geo hints)"
	flagUsagePublicBaseURL          = "public base URL used for default redirect targets"
	flagUsageForwardURL             = "remote internal submit endpoint (empty processes submissions in process)"

	environmentKeyApplicationAddress = "APP_ADDR"
	environmentKeyDatabaseDriver     = "DB_DRIVER"
	environmentKeyDatabaseDataSource = "DB_DSN"
	environmentKeyInternalSecret     = "INTERNAL_SECRET"
	environmentKeySessionTokenSecret = "JWT_SECRET"
	environmentKeyRedisAddress       = "REDIS_ADDR"
	environmentKeyRateLimitPolicy    = "RATE_LIMIT_POLICY"
	environmentKeyRateLimitMax       = "RATE_LIMIT_MAX"
	environmentKeyRateLimitWindow    = "RATE_LIMIT_WINDOW"
	environmentKeyGeoIPDatabasePath  = "GEOIP_DB"
	environmentKeyPublicBaseURL      = "PUBLIC_BASE_URL"
	environmentKeyForwardURL         = "FORWARD_URL"

	defaultApplicationAddress  = ":8080"
	defaultDatabaseDriver      = storage.DriverNameSQLite
	defaultRateLimitPolicy     = "allow"
	defaultRateLimitMax        = 10
	defaultRateLimitWindow     = 10 * time.Second
	defaultSessionTokenTTL     = 24 * time.Hour
	webhookDeliveryTimeout     = 3 * time.Second
	readHeaderTimeoutSeconds   = 5
	unexpectedArgumentsMessage = "unexpected command arguments"

	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"

	loggerContextOpenDatabase = "open_db"
	loggerContextAutoMigrate  = "migrate"
	loggerContextGeoIP        = "geoip"
	loggerContextServer       = "server"
)

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress     string
	DatabaseDriver         string
	DatabaseDataSourceName string
	InternalSecret         string
	SessionTokenSecret     string
	RedisAddress           string
	RateLimitPolicy        string
	RateLimitMaxRequests   int
	RateLimitWindow        time.Duration
	GeoIPDatabasePath      string
	PublicBaseURL          string
	ForwardURL             string
}

// DatabaseOpener opens a database connection using the provided configuration.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

type flagBinding struct {
	environmentKey string
	flagName       string
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	application.configurationLoader.SetDefault(environmentKeyApplicationAddress, defaultApplicationAddress)
	application.configurationLoader.SetDefault(environmentKeyDatabaseDriver, defaultDatabaseDriver)
	application.configurationLoader.SetDefault(environmentKeyRateLimitPolicy, defaultRateLimitPolicy)
	application.configurationLoader.SetDefault(environmentKeyRateLimitMax, defaultRateLimitMax)
	application.configurationLoader.SetDefault(environmentKeyRateLimitWindow, defaultRateLimitWindow)
	application.configurationLoader.AutomaticEnv()

	commandFlags := command.Flags()
	commandFlags.String(flagNameApplicationAddress, defaultApplicationAddress, flagUsageApplicationAddress)
	commandFlags.String(flagNameDatabaseDriver, defaultDatabaseDriver, flagUsageDatabaseDriver)
	commandFlags.String(flagNameDatabaseDataSourceName, "", flagUsageDatabaseDataSourceName)
	commandFlags.String(flagNameInternalSecret, "", flagUsageInternalSecret)
	commandFlags.String(flagNameSessionTokenSecret, "", flagUsageSessionTokenSecret)
	commandFlags.String(flagNameRedisAddress, "", flagUsageRedisAddress)
	commandFlags.String(flagNameRateLimitPolicy, defaultRateLimitPolicy, flagUsageRateLimitPolicy)
	commandFlags.Int(flagNameRateLimitMaxRequests, defaultRateLimitMax, flagUsageRateLimitMaxRequests)
	commandFlags.Duration(flagNameRateLimitWindow, defaultRateLimitWindow, flagUsageRateLimitWindow)
	commandFlags.String(flagNameGeoIPDatabasePath, "", flagUsageGeoIPDatabasePath)
	commandFlags.String(flagNamePublicBaseURL, "", flagUsagePublicBaseURL)
	commandFlags.String(flagNameForwardURL, "", flagUsageForwardURL)

	bindings := []flagBinding{
		{environmentKeyApplicationAddress, flagNameApplicationAddress},
		{environmentKeyDatabaseDriver, flagNameDatabaseDriver},
		{environmentKeyDatabaseDataSource, flagNameDatabaseDataSourceName},
		{environmentKeyInternalSecret, flagNameInternalSecret},
		{environmentKeySessionTokenSecret, flagNameSessionTokenSecret},
		{environmentKeyRedisAddress, flagNameRedisAddress},
		{environmentKeyRateLimitPolicy, flagNameRateLimitPolicy},
		{environmentKeyRateLimitMax, flagNameRateLimitMaxRequests},
		{environmentKeyRateLimitWindow, flagNameRateLimitWindow},
		{environmentKeyGeoIPDatabasePath, flagNameGeoIPDatabasePath},
		{environmentKeyPublicBaseURL, flagNamePublicBaseURL},
		{environmentKeyForwardURL, flagNameForwardURL},
	}
	for _, binding := range bindings {
		if bindErr := application.bindFlag(commandFlags, binding.environmentKey, binding.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	if markErr := command.MarkFlagRequired(flagNameDatabaseDataSourceName); markErr != nil {
		return markErr
	}
	if markErr := command.MarkFlagRequired(flagNameInternalSecret); markErr != nil {
		return markErr
	}
	if markErr := command.MarkFlagRequired(flagNameSessionTokenSecret); markErr != nil {
		return markErr
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadConfiguration() ServerConfig {
	return ServerConfig{
		ApplicationAddress:     application.configurationLoader.GetString(environmentKeyApplicationAddress),
		DatabaseDriver:         strings.TrimSpace(application.configurationLoader.GetString(environmentKeyDatabaseDriver)),
		DatabaseDataSourceName: strings.TrimSpace(application.configurationLoader.GetString(environmentKeyDatabaseDataSource)),
		InternalSecret:         strings.TrimSpace(application.configurationLoader.GetString(environmentKeyInternalSecret)),
		SessionTokenSecret:     strings.TrimSpace(application.configurationLoader.GetString(environmentKeySessionTokenSecret)),
		RedisAddress:           strings.TrimSpace(application.configurationLoader.GetString(environmentKeyRedisAddress)),
		RateLimitPolicy:        strings.TrimSpace(application.configurationLoader.GetString(environmentKeyRateLimitPolicy)),
		RateLimitMaxRequests:   application.configurationLoader.GetInt(environmentKeyRateLimitMax),
		RateLimitWindow:        application.configurationLoader.GetDuration(environmentKeyRateLimitWindow),
		GeoIPDatabasePath:      strings.TrimSpace(application.configurationLoader.GetString(environmentKeyGeoIPDatabasePath)),
		PublicBaseURL:          strings.TrimSpace(application.configurationLoader.GetString(environmentKeyPublicBaseURL)),
		ForwardURL:             strings.TrimSpace(application.configurationLoader.GetString(environmentKeyForwardURL)),
	}
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig := application.loadConfiguration()
	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     serverConfig.DatabaseDriver,
		DataSourceName: serverConfig.DatabaseDataSourceName,
	})
	if databaseErr != nil {
		logger.Fatal(loggerContextOpenDatabase, zap.Error(databaseErr))
	}

	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		logger.Fatal(loggerContextAutoMigrate, zap.Error(migrateErr))
	}

	limiter := buildLimiter(serverConfig)
	geoResolver := buildGeoResolver(serverConfig, logger)
	tokenManager, tokenManagerErr := auth.NewTokenManager(serverConfig.SessionTokenSecret, defaultSessionTokenTTL)
	if tokenManagerErr != nil {
		logger.Fatal(loggerContextServer, zap.Error(tokenManagerErr))
	}

	dispatcher := webhook.NewDispatcher(logger, webhookDeliveryTimeout)
	processor := httpapi.NewInternalSubmitHandlers(database, logger, serverConfig.InternalSecret, dispatcher)

	var forwarder httpapi.SubmissionForwarder
	if serverConfig.ForwardURL != "" {
		forwarder = httpapi.NewHTTPForwarder(serverConfig.ForwardURL, serverConfig.InternalSecret, 0)
	} else {
		forwarder = httpapi.NewLocalForwarder(processor)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))

	registerRoutes(router, routeDependencies{
		database:     database,
		logger:       logger,
		tokenManager: tokenManager,
		processor:    processor,
		ingest: httpapi.NewIngestHandlers(database, logger, httpapi.IngestConfig{
			Limiter:       limiter,
			LimiterPolicy: ratelimit.ParsePolicy(serverConfig.RateLimitPolicy),
			GeoResolver:   geoResolver,
			Forwarder:     forwarder,
			PublicBaseURL: serverConfig.PublicBaseURL,
		}),
	})

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress))
	if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Fatal(loggerContextServer, zap.Error(serveErr))
	}

	return nil
}

func buildLimiter(serverConfig ServerConfig) ratelimit.Limiter {
	if serverConfig.RedisAddress == "" {
		return ratelimit.NewMemoryLimiter(serverConfig.RateLimitMaxRequests, serverConfig.RateLimitWindow)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: serverConfig.RedisAddress})
	return ratelimit.NewRedisLimiter(redisClient, serverConfig.RateLimitMaxRequests, serverConfig.RateLimitWindow)
}

func buildGeoResolver(serverConfig ServerConfig, logger *zap.Logger) geo.Resolver {
	if serverConfig.GeoIPDatabasePath == "" {
		return geo.NoopResolver{}
	}
	resolver, resolverErr := geo.NewMaxMindResolver(serverConfig.GeoIPDatabasePath)
	if resolverErr != nil {
		logger.Warn(loggerContextGeoIP, zap.Error(resolverErr), zap.String("path", serverConfig.GeoIPDatabasePath))
		return geo.NoopResolver{}
	}
	return resolver
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.DatabaseDataSourceName == "" {
		missingParameters = append(missingParameters, flagNameDatabaseDataSourceName)
	}
	if configuration.InternalSecret == "" {
		missingParameters = append(missingParameters, flagNameInternalSecret)
	}
	if configuration.SessionTokenSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionTokenSecret)
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
