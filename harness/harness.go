package harness

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/raulk/clock"
	"github.com/samber/mo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eiprobe/db"
	lib "eiprobe/lib/sagemaker"
	"eiprobe/lib/tracer"
	"eiprobe/platform"
	"eiprobe/s3"
	"eiprobe/sagemaker"
)

type HarnessArgs struct {
	platform.Args     `json:"platform_._platform_args"`
	tracer.TracerArgs `json:"tracer_._tracer_args"`

	Bucket   string `arg:"--bucket,env:SMOKE_BUCKET" json:"bucket,omitempty" help:"bucket to upload artifacts to, defaults to sagemaker-<region>-<account>"`
	LedgerDB string `arg:"--ledger-db,env:LEDGER_DB" json:"ledger_db,omitempty" help:"sqlite file recording deployed endpoints"`

	MysqlHost     string `arg:"--mysql-host,env:MYSQL_SERVER_ADDRESS" json:"mysql_host,omitempty"`
	MysqlDB       string `arg:"--mysql-db,env:MYSQL_DATABASE_NAME" json:"mysql_db,omitempty"`
	MysqlUsername string `arg:"--mysql-user,env:MYSQL_USERNAME" json:"mysql_username,omitempty"`
	MysqlPassword string `arg:"--mysql-password,env:MYSQL_PASSWORD" json:"mysql_password,omitempty"`

	Dev bool `arg:"--dev" default:"false" json:"dev,omitempty"`
}

func (args HarnessArgs) Valid() error {
	missingFields := make([]string, 0)
	if args.Region == "" {
		missingFields = append(missingFields, "AWS_REGION")
	}
	if args.MysqlHost != "" {
		if args.LedgerDB != "" {
			return fmt.Errorf("only one of --ledger-db and --mysql-host may be set")
		}
		if args.MysqlDB == "" {
			missingFields = append(missingFields, "MYSQL_DATABASE_NAME")
		}
		if args.MysqlUsername == "" {
			missingFields = append(missingFields, "MYSQL_USERNAME")
		}
		if args.MysqlPassword == "" {
			missingFields = append(missingFields, "MYSQL_PASSWORD")
		}
	}
	if len(missingFields) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missingFields, ", "))
	}
	return nil
}

// SagemakerClient is everything a smoke run needs from the hosting platform.
type SagemakerClient interface {
	lib.Registry
	lib.InferenceServer
	lib.LogSource
}

// ArtifactStore is the storage a smoke run uploads to.
type ArtifactStore interface {
	lib.ArtifactStore
	EnsureBucket(ctx context.Context, bucket string) error
}

// Identity resolves who the harness runs as.
type Identity interface {
	Region() string
	AccountID(ctx context.Context) (string, error)
}

// Harness bundles the clients and stores shared by the controllers.
type Harness struct {
	Identity        Identity
	SagemakerClient SagemakerClient
	S3Client        ArtifactStore
	// DB is the ledger of deployed endpoints, when one is configured.
	DB     mo.Option[db.Connection]
	Clock  clock.Clock
	Logger *zap.Logger
	Args   HarnessArgs
}

func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
}

// CreateFromArgs builds the harness. It only makes local calls: no request
// reaches the platform until a client is used.
func CreateFromArgs(args *HarnessArgs) (h Harness, err error) {
	// First, create a structured logger that we can then use in other places.
	log.Print("Creating logger")
	logger, err := NewLogger(args.Dev)
	if err != nil {
		return h, fmt.Errorf("failed to construct logger: %v", err)
	}
	_ = zap.ReplaceGlobals(logger)

	if err := args.Valid(); err != nil {
		return h, err
	}
	logger = logger.With(zap.String("region", args.Region))

	ledger := mo.None[db.Connection]()
	switch {
	case args.LedgerDB != "":
		logger.Info("Opening sqlite ledger", zap.String("path", args.LedgerDB))
		conn, err := db.SQLiteConfig{Path: args.LedgerDB, Schema: Schema}.Materialize()
		if err != nil {
			return h, fmt.Errorf("failed to open ledger: %v", err)
		}
		ledger = mo.Some(conn.(db.Connection))
	case args.MysqlHost != "":
		logger.Info("Connecting to mysql ledger")
		conn, err := db.MySQLConfig{
			Host:     args.MysqlHost,
			DBname:   args.MysqlDB,
			Username: args.MysqlUsername,
			Password: args.MysqlPassword,
			Schema:   Schema,
		}.Materialize()
		if err != nil {
			return h, fmt.Errorf("failed to connect with mysql: %v", err)
		}
		ledger = mo.Some(conn.(db.Connection))
	}

	logger.Info("Creating aws session", zap.Bool("custom_endpoints", args.Custom()))
	sess, err := platform.New(args.Args)
	if err != nil {
		return h, err
	}

	return Harness{
		Identity:        sess,
		SagemakerClient: sagemaker.NewClient(sess, logger),
		S3Client:        s3.NewClient(sess, logger),
		DB:              ledger,
		Clock:           clock.New(),
		Logger:          logger,
		Args:            *args,
	}, nil
}

// DefaultBucket returns the bucket artifacts are uploaded to, creating the
// account's default bucket when no bucket is configured.
func (h Harness) DefaultBucket(ctx context.Context) (string, error) {
	if h.Args.Bucket != "" {
		return h.Args.Bucket, nil
	}
	account, err := h.Identity.AccountID(ctx)
	if err != nil {
		return "", err
	}
	bucket := platform.DefaultBucketName(h.Identity.Region(), account)
	if err := h.S3Client.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}
	return bucket, nil
}

func (h Harness) Close() error {
	_ = h.Logger.Sync()
	if conn, ok := h.DB.Get(); ok {
		return conn.Close()
	}
	return nil
}
