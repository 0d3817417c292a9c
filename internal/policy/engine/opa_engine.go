package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"passwordless-auth/backend/internal/authz"
	"passwordless-auth/backend/internal/platform/logger"
	"passwordless-auth/backend/internal/policy/repository"
)

// OPAEngine implements authz.Engine with prepared Rego queries. Modules are compiled once at
// construction, so each check is an in-process evaluation. Evaluation errors deny.
type OPAEngine struct {
	allow    rego.PreparedEvalQuery
	username rego.PreparedEvalQuery
	log      *zap.Logger
}

var _ authz.Engine = (*OPAEngine)(nil)

// NewOPAEngine compiles modules (file name → Rego source) and prepares the allow and
// can_change_username queries. Empty modules selects DefaultRegoPolicy.
func NewOPAEngine(ctx context.Context, modules map[string]string, log *zap.Logger) (*OPAEngine, error) {
	if len(modules) == 0 {
		modules = map[string]string{"default.rego": DefaultRegoPolicy}
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	allow, err := rego.New(
		rego.Query("data."+DefaultPolicyPackage+".allow"),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare allow: %w", err)
	}
	username, err := rego.New(
		rego.Query("data."+DefaultPolicyPackage+".can_change_username"),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare can_change_username: %w", err)
	}
	return &OPAEngine{allow: allow, username: username, log: logger.OrNop(log).Named("authz.opa")}, nil
}

// LoadOPAEngine builds an engine from the enabled policies in repo, falling back to the
// default policy when none are enabled.
func LoadOPAEngine(ctx context.Context, repo repository.Repository, log *zap.Logger) (*OPAEngine, error) {
	modules := make(map[string]string)
	if repo != nil {
		policies, err := repo.ListEnabled(ctx)
		if err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		for i, p := range policies {
			if p.Rules == "" {
				continue
			}
			modules[fmt.Sprintf("policy_%d_%s.rego", i, p.ID)] = p.Rules
		}
	}
	return NewOPAEngine(ctx, modules, log)
}

// Authorize evaluates data.passwordless.authz.allow for {role, permission}.
func (e *OPAEngine) Authorize(ctx context.Context, role authz.Role, perm authz.UserPermission) error {
	input := map[string]interface{}{
		"role":       string(role),
		"permission": string(perm.Permission()),
	}
	return e.eval(ctx, e.allow, input, "allow")
}

// CanChangeUsername evaluates data.passwordless.authz.can_change_username for {target_id, actor}.
func (e *OPAEngine) CanChangeUsername(ctx context.Context, targetID string, actor authz.Actor) error {
	input := map[string]interface{}{
		"target_id": targetID,
		"actor": map[string]interface{}{
			"id":   actor.ID,
			"role": string(actor.Role),
		},
	}
	return e.eval(ctx, e.username, input, "can_change_username")
}

func (e *OPAEngine) eval(ctx context.Context, q rego.PreparedEvalQuery, input map[string]interface{}, rule string) error {
	if err := ctx.Err(); err != nil {
		e.log.Warn("policy evaluation skipped", zap.String("rule", rule), zap.Error(err))
		return authz.ErrUnauthorized
	}
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.log.Error("policy evaluation failed", zap.String("rule", rule), zap.Error(err))
		return authz.ErrUnauthorized
	}
	if !rs.Allowed() {
		return authz.ErrUnauthorized
	}
	return nil
}

// HealthCheck verifies the compiled policy still answers a known admit and a known deny.
func (e *OPAEngine) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Authorize(ctx, authz.RoleAdmin, authz.ViewUser); err != nil {
		return fmt.Errorf("policy denies admin: %w", err)
	}
	if err := e.Authorize(ctx, authz.RoleGuest, authz.BanUser); err == nil {
		return fmt.Errorf("policy allows guest to ban")
	}
	return nil
}
