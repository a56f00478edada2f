// Package main implements the bootstrap CLI that seeds AWS SSM Parameter
// Store with the secrets BugSpotter reads at cold start.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=prod --profile=bugspotter-prod --skip-optional
//
// Every parameter lands under /{env}/bugspotter/{key}. Point the matching
// *_SSM_PARAM variable of each function at that path (for example
// DATABASE_URL_SSM_PARAM=/prod/bugspotter/database_url).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// Session is the identity and AWS config the run operates under.
type Session struct {
	Environment string
	Region      string
	AccountID   string
	CallerARN   string
	AWSConfig   aws.Config
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: credential chain)")
	regionFlag := flag.String("region", "us-east-1", "AWS region")
	skipOptional := flag.Bool("skip-optional", false, "Skip optional parameters (weather, Stripe) without prompting")
	flag.Parse()

	if !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: --env must be dev, staging, or prod (got %q)\n\n", *envFlag)
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := newSession(ctx, *envFlag, *profileFlag, *regionFlag)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	logger.Info("AWS identity verified", "account_id", sess.AccountID, "arn", sess.CallerARN, "region", sess.Region)

	stdin := bufio.NewScanner(os.Stdin)
	if sess.Environment == "prod" && !confirmProduction(os.Stderr, stdin, sess) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}

	runner := &Runner{
		SSM:          NewSSMManager(sess.AWSConfig, sess.Environment, logger),
		Validator:    NewValidator(),
		Stdin:        os.Stdin,
		Out:          os.Stderr,
		SkipOptional: *skipOptional,
		scanner:      stdin,
	}
	if err := runner.Run(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
}

// newSession loads the AWS config and confirms the identity with STS before
// anything is written.
func newSession(ctx context.Context, env, profile, region string) (*Session, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	idCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(idCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (profile %q, region %q): %w", profile, region, err)
	}

	return &Session{
		Environment: env,
		Region:      region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
	}, nil
}

// confirmProduction requires the operator to type "yes".
func confirmProduction(out io.Writer, in *bufio.Scanner, sess *Session) bool {
	fmt.Fprintln(out, "\n  WARNING: you are targeting PRODUCTION")
	fmt.Fprintf(out, "  Account: %s\n  Region:  %s\n  ARN:     %s\n\n", sess.AccountID, sess.Region, sess.CallerARN)
	fmt.Fprint(out, "Type 'yes' to continue: ")
	if !in.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(in.Text()), "yes")
}
