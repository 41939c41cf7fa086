package admin

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// FeatureSSO gates federated-login strategy registration and routes.
const FeatureSSO = "admin.sso"

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	return errors.Wrap(err, errors.CategoryAuthz, "Feature gate check failed").
		WithCode(errors.CodeForbidden)
}

func requireSSOGate(ctx context.Context, featureGate gate.FeatureGate) error {
	if featureGate == nil {
		return ErrSSODisabled
	}
	return guard.Require(ctx, featureGate, FeatureSSO,
		guard.WithDisabledError(ErrSSODisabled),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}
