package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/bionicotaku/lingo-utils-gcpauth"
)

func main() {
	envPath := defaultEnvPath()
	if err := loadEnvFile(envPath); err != nil {
		log.Printf("warning: load %s: %v", envPath, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("read environment: %v", err)
	}

	flag.StringVar(&cfg.CredentialsFile, "credentials", cfg.CredentialsFile, "Service account key file (env GOOGLE_APPLICATION_CREDENTIALS)")
	scopes := flag.String("scopes", strings.Join(cfg.Scopes, ","), "Comma-separated OAuth scopes (env GCP_TOKEN_SCOPES)")
	flag.StringVar(&cfg.Subject, "subject", cfg.Subject, "User to impersonate via domain-wide delegation (env GCP_TOKEN_SUBJECT)")
	flag.StringVar(&cfg.TokenURL, "token-url", cfg.TokenURL, "Token endpoint override (env GCP_TOKEN_URL)")
	flag.StringVar(&cfg.JWKSURL, "jwks-url", cfg.JWKSURL, "JWKS override used with -verify (env GCP_TOKEN_JWKS_URL)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Deadline for the whole run (env GCP_TOKEN_TIMEOUT)")
	flag.BoolVar(&cfg.Verify, "verify", cfg.Verify, "Verify a signed assertion against the account's published keys (env GCP_TOKEN_VERIFY)")
	flag.BoolVar(&cfg.Inspect, "inspect", cfg.Inspect, "Look up the issued token at the tokeninfo endpoint (env GCP_TOKEN_INSPECT)")
	flag.IntVar(&cfg.Verbosity, "v", cfg.Verbosity, "Log verbosity (env GCP_TOKEN_VERBOSITY)")
	envFlag := flag.String("env", envPath, "Path to .env file")
	flag.Parse()
	cfg.Scopes = splitList(*scopes)

	if *envFlag != "" && *envFlag != envPath {
		if err := loadEnvFile(*envFlag); err != nil {
			log.Printf("warning: load %s: %v", *envFlag, err)
		}
		explicit := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := fillFromEnv(&cfg, explicit); err != nil {
			log.Fatalf("read environment: %v", err)
		}
	}

	if cfg.CredentialsFile == "" {
		flag.Usage()
		log.Fatal("credentials file is required (via flag, .env, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	stdr.SetVerbosity(cfg.Verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	if err := run(cfg, logger, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg config, logger logr.Logger, out io.Writer) error {
	cred, err := gcpauth.LoadCredentialFile(cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	acquirer := gcpauth.NewAcquirer(gcpauth.AcquirerConfig{
		TokenURL: cfg.TokenURL,
		Logger:   logger,
	})

	scope := cfg.scope()
	var opts []gcpauth.AssertionOption
	if cfg.Subject != "" {
		opts = append(opts, gcpauth.WithSubject(cfg.Subject))
	}

	tok, err := acquirer.Exchange(ctx, cred, scope, opts...)
	if err != nil {
		return fmt.Errorf("acquire access token: %w (check the key is active and the scopes are granted)", err)
	}

	if !cfg.Verify && !cfg.Inspect {
		_, err := fmt.Fprintln(out, tok.Value)
		return err
	}

	fmt.Fprintln(out, "== Access Token Acquired ==")
	fmt.Fprintf(out, "client_email : %s\n", cred.ClientEmail)
	fmt.Fprintf(out, "scope        : %s\n", scope)
	fmt.Fprintf(out, "token_type   : %s\n", tok.TokenType)
	fmt.Fprintf(out, "expires_at   : %s\n", tok.Expiry.Format(time.RFC3339))
	fmt.Fprintf(out, "access_token : %s\n", tok.Value)

	if cfg.Verify {
		claims, err := verifyAssertion(ctx, cfg, acquirer, cred, scope, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "== Assertion Verified ==")
		fmt.Fprintf(out, "issuer       : %s\n", claims.Issuer)
		fmt.Fprintf(out, "audience     : %s\n", claims.Audience)
		fmt.Fprintf(out, "lifetime     : %s\n", claims.Lifetime())
	}

	if cfg.Inspect {
		inspector, err := gcpauth.NewInspector(ctx)
		if err != nil {
			return err
		}
		info, err := inspector.Inspect(ctx, tok.Value)
		if err != nil {
			return fmt.Errorf("inspect token: %w", err)
		}
		fmt.Fprintln(out, "== Token Info ==")
		fmt.Fprintf(out, "email        : %s\n", info.Email)
		fmt.Fprintf(out, "audience     : %s\n", info.Audience)
		fmt.Fprintf(out, "expires_in   : %s\n", info.ExpiresIn)
		for _, s := range info.Scopes {
			fmt.Fprintf(out, "scope        : %s\n", s)
		}
	}
	return nil
}

func verifyAssertion(ctx context.Context, cfg config, acquirer *gcpauth.Acquirer, cred *gcpauth.ServiceAccountCredential, scope gcpauth.Scope, opts []gcpauth.AssertionOption) (*gcpauth.AssertionClaims, error) {
	verifier, err := gcpauth.NewVerifier(gcpauth.VerifierConfig{
		Accounts: []gcpauth.AccountConfig{{
			ClientEmail: cred.ClientEmail,
			JWKSURL:     cfg.JWKSURL,
			Audience:    acquirer.TokenURL(),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	defer verifier.Close()

	assertion, _, err := acquirer.SignAssertion(cred, scope, opts...)
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}
	claims, err := verifier.Verify(ctx, assertion)
	if err != nil {
		return nil, fmt.Errorf("verify assertion: %w", err)
	}
	return claims, nil
}
