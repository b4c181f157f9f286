// README: Entry point; loads config, wires stores, services and the router, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"waykel/internal/config"
	httptransport "waykel/internal/http"
	"waykel/internal/infra"
	"waykel/internal/modules/payment"
	"waykel/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifiers []infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		fv, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.CheckRevoked)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
		verifiers = append(verifiers, fv)
	}
	if cfg.JWT.Secret != "" {
		jv, err := infra.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
		if err != nil {
			log.Fatalf("jwt init: %v", err)
		}
		verifiers = append(verifiers, jv)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("redis unavailable at %s, status updates will not be published: %v", cfg.Redis.Addr, err)
	}
	publisher := infra.NewRedisPublisher(redisClient)

	rideStore := ride.NewStore(dbPool)
	rideSvc := ride.NewService(rideStore, publisher)

	paymentStore := payment.NewStore(dbPool)
	paymentSvc := payment.NewService(paymentStore, rideSvc, publisher)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:      rideSvc,
		Payments:   paymentSvc,
		Viewer:     rideSvc,
		Subscriber: publisher,
		Verifier:   infra.ChainVerifiers(verifiers...),
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("waykel-api listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
