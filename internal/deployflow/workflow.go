// Package deployflow runs the client-side deployment workflow: a single
// sequential pass through balance check, wallet signing, transaction
// submission, confirmation polling and the build trigger. It holds no
// authoritative state; the registries own everything it touches.
package deployflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shiplet/shiplet/internal/buildsvc"
	"github.com/shiplet/shiplet/internal/chain"
	"github.com/shiplet/shiplet/internal/config"
	"go.uber.org/zap"
)

type State string

const (
	StateChecking   State = "checking"
	StateSigning    State = "signing"
	StateProcessing State = "processing"
	StateConfirming State = "confirming"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 30
)

var (
	ErrWalletNotConnected = errors.New("wallet_not_connected")
	ErrSigningRejected    = errors.New("signing_rejected")
)

// Balances reads a token balance for an address.
type Balances interface {
	Balance(ctx context.Context, address, token string) (int64, error)
}

// Submitter broadcasts a signed transaction and returns its digest.
type Submitter interface {
	SubmitSigned(ctx context.Context, signedPayload string) (string, error)
}

// StatusReader reads the confirmation state of a submitted transaction.
type StatusReader interface {
	TransactionStatus(ctx context.Context, digest string) (chain.TxStatus, error)
}

// BuildTrigger kicks off the external build once payment has confirmed.
type BuildTrigger interface {
	TriggerBuild(ctx context.Context, req buildsvc.Request) (buildsvc.Result, error)
}

// Signer asks the user's wallet to sign the payment intent. The wait is
// user-driven and bounded only by ctx.
type Signer interface {
	Sign(ctx context.Context, intent PaymentIntent) (string, error)
}

// CostFn computes the required payment in base units for an estimate.
type CostFn func(estimatedUnits int64) int64

type PaymentIntent struct {
	Address string
	Token   string
	Amount  int64
	RepoURL string
}

type Request struct {
	Address        string
	RepoURL        string
	EstimatedUnits int64
	DeploymentID   string
	Signer         Signer

	// OnTransition, when set, observes every state change.
	OnTransition func(State)
}

type Result struct {
	State     State
	Message   string
	TxDigest  string
	BuildID   string
	PublicURL string
}

type Workflow struct {
	balances Balances
	submit   Submitter
	status   StatusReader
	builds   BuildTrigger
	cost     CostFn
	token    string
	log      *zap.Logger

	pollInterval time.Duration
	maxAttempts  int
}

type Option func(*Workflow)

// WithPolling overrides the confirmation poll cadence.
func WithPolling(interval time.Duration, maxAttempts int) Option {
	return func(w *Workflow) {
		if interval > 0 {
			w.pollInterval = interval
		}
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
	}
}

func New(balances Balances, submit Submitter, status StatusReader, builds BuildTrigger, cost CostFn, token string, log *zap.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		balances:     balances,
		submit:       submit,
		status:       status,
		builds:       builds,
		cost:         cost,
		token:        token,
		log:          log.Named("deployflow"),
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the workflow to a terminal state. A non-nil error is
// returned only for programmer mistakes (missing signer); user-facing
// failures come back as StateFailed with a message.
func (w *Workflow) Run(ctx context.Context, req Request) (Result, error) {
	if req.Address == "" {
		return Result{}, ErrWalletNotConnected
	}
	if req.Signer == nil {
		return Result{}, errors.New("deployflow: nil signer")
	}

	transition := func(s State) {
		if req.OnTransition != nil {
			req.OnTransition(s)
		}
	}

	transition(StateChecking)
	required := w.cost(req.EstimatedUnits)
	balance, err := w.balances.Balance(ctx, req.Address, w.token)
	if err != nil {
		return w.fail(transition, "", fmt.Sprintf("Network error: %v", err)), nil
	}
	if balance < required {
		msg := fmt.Sprintf("Insufficient %s. Required: %s", w.token, FormatAmount(required))
		return w.fail(transition, "", msg), nil
	}

	transition(StateSigning)
	signed, err := req.Signer.Sign(ctx, PaymentIntent{
		Address: req.Address,
		Token:   w.token,
		Amount:  required,
		RepoURL: req.RepoURL,
	})
	if err != nil {
		return w.fail(transition, "", "Transaction signing was rejected"), nil
	}

	transition(StateProcessing)
	digest, err := w.submit.SubmitSigned(ctx, signed)
	if err != nil {
		return w.fail(transition, "", fmt.Sprintf("Network error: %v", err)), nil
	}

	transition(StateConfirming)
	status, err := w.awaitConfirmation(ctx, digest)
	if err != nil {
		return w.fail(transition, digest, fmt.Sprintf("Network error: %v", err)), nil
	}
	switch status {
	case chain.TxStatusSuccess:
	case chain.TxStatusFailure:
		return w.fail(transition, digest, "Transaction failed on chain"), nil
	default:
		return w.fail(transition, digest, "Transaction did not confirm in time"), nil
	}

	buildResult, err := w.builds.TriggerBuild(ctx, buildsvc.Request{
		GithubURL:         req.RepoURL,
		TransactionDigest: digest,
		DeploymentID:      req.DeploymentID,
		PaymentMethod:     w.token,
	})
	if err != nil {
		// Payment confirmed on chain but the build never started; the user
		// has been charged without a deployment. Keep the digest visible.
		w.log.Warn("build trigger failed after confirmed payment",
			zap.String("tx_digest", digest),
			zap.String("repo_url", req.RepoURL),
			zap.Error(err),
		)
		result := w.fail(transition, digest, backendMessage(err))
		return result, nil
	}

	transition(StateSuccess)
	return Result{
		State:     StateSuccess,
		TxDigest:  digest,
		BuildID:   buildResult.BuildID,
		PublicURL: buildResult.PublicURL,
	}, nil
}

// awaitConfirmation polls at a fixed interval up to maxAttempts and returns
// the first settled status it sees. A transaction still pending after the
// last attempt comes back as pending, not as an error; explicit on-chain
// failure is reported as such so it is never mistaken for a timeout.
func (w *Workflow) awaitConfirmation(ctx context.Context, digest string) (chain.TxStatus, error) {
	for attempt := 0; attempt < w.maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(w.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return chain.TxStatusPending, ctx.Err()
			case <-timer.C:
			}
		}

		status, err := w.status.TransactionStatus(ctx, digest)
		if err != nil {
			return chain.TxStatusPending, err
		}
		if status != chain.TxStatusPending {
			return status, nil
		}
	}
	return chain.TxStatusPending, nil
}

func (w *Workflow) fail(transition func(State), digest, message string) Result {
	transition(StateFailed)
	return Result{State: StateFailed, Message: message, TxDigest: digest}
}

func backendMessage(err error) string {
	if errors.Is(err, buildsvc.ErrBackend) {
		return err.Error()
	}
	return fmt.Sprintf("Build backend unavailable: %v", err)
}

// FormatAmount renders base units as a token amount with two decimals.
func FormatAmount(units int64) string {
	whole := units / config.BaseUnitsPerToken
	frac := (units % config.BaseUnitsPerToken) * 100 / config.BaseUnitsPerToken
	return fmt.Sprintf("%d.%02d", whole, frac)
}
