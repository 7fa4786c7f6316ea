package receipts

import (
	"context"
	"log/slog"
	"time"

	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/orders"
	"github.com/snackline/snackline/internal/shared"
)

// OrderSource resolves the order a receipt was printed for, applying the
// order package's own visibility rules.
type OrderSource interface {
	Find(ctx context.Context, actor shared.Principal, id int64) (*orders.Order, error)
}

// RecoverySource resolves the recovery a receipt was printed for.
type RecoverySource interface {
	Recovery(ctx context.Context, actor shared.Principal, id int64) (*ledger.RecoveryRecord, error)
}

// AccountDirectory scopes admin access to managed salesmen.
type AccountDirectory interface {
	ManagesSalesman(ctx context.Context, adminID, salesmanID int64) (bool, error)
	SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error)
}

// Service implements the receipt archive workflows.
type Service struct {
	repo       RepositoryPort
	orders     OrderSource
	recoveries RecoverySource
	accounts   AccountDirectory
	log        *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, orders OrderSource, recoveries RecoverySource, accounts AccountDirectory, log *slog.Logger) *Service {
	return &Service{repo: repo, orders: orders, recoveries: recoveries, accounts: accounts, log: log}
}

// NewReceipt is the input for archiving a print.
type NewReceipt struct {
	Kind       Kind
	OrderID    int64
	RecoveryID int64
	Content    string
	Notes      string
}

// Create archives a printed receipt. The parties and the total come from the
// referenced order or recovery, so the archive cannot disagree with the
// record it was printed from. The referenced record must be visible to the
// actor.
func (s *Service) Create(ctx context.Context, actor shared.Principal, in NewReceipt) (*Receipt, error) {
	if !in.Kind.Valid() {
		return nil, ErrBadKind
	}

	rc := &Receipt{
		Kind:      in.Kind,
		Content:   in.Content,
		Status:    StatusIssued,
		PrintedBy: actor.ID,
		PrintedAt: time.Now().UTC(),
		Notes:     in.Notes,
	}
	switch in.Kind {
	case KindOrder:
		if in.OrderID == 0 {
			return nil, ErrMissingRef
		}
		order, err := s.orders.Find(ctx, actor, in.OrderID)
		if err != nil {
			return nil, err
		}
		id := in.OrderID
		rc.OrderID = &id
		rc.ShopkeeperID = order.ShopkeeperID
		rc.SalesmanID = order.SalesmanID
		rc.TotalAmount = order.TotalAmount
	case KindRecovery:
		if in.RecoveryID == 0 {
			return nil, ErrMissingRef
		}
		rec, err := s.recoveries.Recovery(ctx, actor, in.RecoveryID)
		if err != nil {
			return nil, err
		}
		id := in.RecoveryID
		rc.RecoveryID = &id
		rc.ShopkeeperID = rec.ShopkeeperID
		rc.SalesmanID = rec.SalesmanID
		rc.TotalAmount = rec.NetPayment
	}

	if err := s.repo.Insert(ctx, rc); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "receipt archived",
		"receipt_id", rc.ID, "receipt_type", string(rc.Kind), "printed_by", rc.PrintedBy,
		"total", rc.TotalAmount.String())
	return rc, nil
}

// Find fetches one receipt if the actor may see it.
func (s *Service) Find(ctx context.Context, actor shared.Principal, id int64) (*Receipt, error) {
	rc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireReceiptAccess(ctx, actor, rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

// List returns receipts visible to the actor.
func (s *Service) List(ctx context.Context, actor shared.Principal, f Filter, limit, offset int) ([]Receipt, int, error) {
	f, ok, err := s.scope(ctx, actor, f)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return []Receipt{}, 0, nil
	}
	return s.repo.List(ctx, f, limit, offset)
}

// SetStatus voids or reinstates a receipt, admin and superadmin only.
func (s *Service) SetStatus(ctx context.Context, actor shared.Principal, id int64, status Status) (*Receipt, error) {
	if !status.Valid() {
		return nil, ErrBadStatus
	}
	rc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case shared.RoleSuperAdmin:
	case shared.RoleAdmin:
		manages, err := s.accounts.ManagesSalesman(ctx, actor.ID, rc.SalesmanID)
		if err != nil {
			return nil, err
		}
		if !manages {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "receipt status updated", "receipt_id", id, "status", string(status))
	return &updated, nil
}

// Overview aggregates receipts visible to the actor.
func (s *Service) Overview(ctx context.Context, actor shared.Principal, f Filter) (Summary, error) {
	f, ok, err := s.scope(ctx, actor, f)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		return Summary{ByKind: []KindSummaryRow{}}, nil
	}
	return s.repo.Summarize(ctx, f)
}

func (s *Service) requireReceiptAccess(ctx context.Context, actor shared.Principal, rc Receipt) error {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return nil
	case shared.RoleSalesman:
		if rc.SalesmanID == actor.ID {
			return nil
		}
	case shared.RoleShopkeeper:
		if rc.ShopkeeperID == actor.ID {
			return nil
		}
	case shared.RoleAdmin:
		manages, err := s.accounts.ManagesSalesman(ctx, actor.ID, rc.SalesmanID)
		if err != nil {
			return err
		}
		if manages {
			return nil
		}
	}
	return ErrForbidden
}

// scope narrows the filter to what the actor may see. The bool is false when
// the actor can see nothing at all.
func (s *Service) scope(ctx context.Context, actor shared.Principal, f Filter) (Filter, bool, error) {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return f, true, nil
	case shared.RoleSalesman:
		f.SalesmanID = actor.ID
		f.SalesmanIDs = nil
		return f, true, nil
	case shared.RoleShopkeeper:
		f.ShopkeeperID = actor.ID
		f.SalesmanIDs = nil
		return f, true, nil
	case shared.RoleAdmin:
		ids, err := s.accounts.SalesmenManagedBy(ctx, actor.ID)
		if err != nil {
			return f, false, err
		}
		if len(ids) == 0 {
			return f, false, nil
		}
		f.SalesmanIDs = ids
		return f, true, nil
	default:
		return f, false, nil
	}
}
