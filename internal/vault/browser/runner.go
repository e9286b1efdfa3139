package browser

import (
	"context"
	"log/slog"

	"github.com/brokerops/portalvault/internal/vault/domain"
)

// Runner ties provisioning and the login flow together into the one blocking
// call the dispatcher schedules. Each Run owns exactly one browser session
// for its whole lifetime.
type Runner struct {
	Provisioner *Provisioner
	Flow        FlowConfig
	Logger      *slog.Logger
}

// Run provisions an isolated browser session, drives the portal login and
// returns the extracted token. The session is torn down on every exit path.
func (r *Runner) Run(ctx context.Context, creds domain.Credentials) (domain.AcquiredToken, error) {
	session, err := r.Provisioner.Provision()
	if err != nil {
		return domain.AcquiredToken{}, err
	}
	defer session.Close()

	token, err := RunLogin(ctx, session.Browser, creds, r.Flow)
	if err != nil {
		r.Logger.Debug("login flow failed",
			"account", domain.MaskAccountID(creds.AccountID),
			"kind", string(domain.KindOf(err)),
		)
		return domain.AcquiredToken{}, err
	}
	return token, nil
}
