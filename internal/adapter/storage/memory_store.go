package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type memoryState struct {
	products  map[string]domain.Product
	images    map[string][]domain.ProductImage
	lineItems map[string][]domain.LineItem // keyed by order ID
	orders    map[string]domain.Order
}

func newMemoryState() *memoryState {
	return &memoryState{
		products:  make(map[string]domain.Product),
		images:    make(map[string][]domain.ProductImage),
		lineItems: make(map[string][]domain.LineItem),
		orders:    make(map[string]domain.Order),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.images {
		c.images[k] = append([]domain.ProductImage(nil), v...)
	}
	for k, v := range s.lineItems {
		c.lineItems[k] = append([]domain.LineItem(nil), v...)
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

// MemoryStore is an in-process UnitOfWork. Atomic holds the store lock for
// the whole callback and works on a copy of the state, which replaces the
// live state only when the callback succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

var _ port.UnitOfWork = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

type memoryView interface {
	run(fn func(st *memoryState) error) error
}

type lockedView struct {
	store *MemoryStore
}

func (v lockedView) run(fn func(st *memoryState) error) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type txView struct {
	st *memoryState
}

func (v txView) run(fn func(st *memoryState) error) error {
	return fn(v.st)
}

type memoryRepos struct {
	view memoryView
}

func (r memoryRepos) Products() port.ProductRepository   { return memoryProducts{r.view} }
func (r memoryRepos) Images() port.ImageRepository       { return memoryImages{r.view} }
func (r memoryRepos) LineItems() port.LineItemRepository { return memoryLineItems{r.view} }
func (r memoryRepos) Orders() port.OrderRepository       { return memoryOrders{r.view} }

func (m *MemoryStore) repos() memoryRepos { return memoryRepos{view: lockedView{store: m}} }

func (m *MemoryStore) Products() port.ProductRepository   { return m.repos().Products() }
func (m *MemoryStore) Images() port.ImageRepository       { return m.repos().Images() }
func (m *MemoryStore) LineItems() port.LineItemRepository { return m.repos().LineItems() }
func (m *MemoryStore) Orders() port.OrderRepository       { return m.repos().Orders() }

func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := m.state.clone()
	if err := fn(ctx, memoryRepos{view: txView{st: working}}); err != nil {
		return err
	}
	m.state = working
	return nil
}

type memoryProducts struct{ view memoryView }

func (r memoryProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var out *domain.Product
	err := r.view.run(func(st *memoryState) error {
		if p, ok := st.products[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

// LockByID needs no extra locking here: every view already reads current state.
func (r memoryProducts) LockByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.FindByID(ctx, id)
}

func (r memoryProducts) Create(ctx context.Context, product *domain.Product) error {
	return r.view.run(func(st *memoryState) error {
		if product.ID == "" {
			product.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		product.CreatedAt, product.UpdatedAt = now, now
		st.products[product.ID] = *product
		return nil
	})
}

func (r memoryProducts) Update(ctx context.Context, product *domain.Product) error {
	return r.view.run(func(st *memoryState) error {
		current, ok := st.products[product.ID]
		if !ok {
			return &domain.NotFoundError{Entity: "product", ID: product.ID}
		}
		if current.Version != product.Version {
			return ErrOptimisticLock
		}
		product.Version++
		product.CreatedAt = current.CreatedAt
		product.UpdatedAt = time.Now().UTC()
		st.products[product.ID] = *product
		return nil
	})
}

func (r memoryProducts) Delete(ctx context.Context, id string) error {
	return r.view.run(func(st *memoryState) error {
		if _, ok := st.products[id]; !ok {
			return &domain.NotFoundError{Entity: "product", ID: id}
		}
		delete(st.products, id)
		delete(st.images, id)
		return nil
	})
}

func (r memoryProducts) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	var ok bool
	err := r.view.run(func(st *memoryState) error {
		p, found := st.products[id]
		if !found || !p.TrackInventory || p.Stock < quantity {
			return nil
		}
		p.Stock -= quantity
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		ok = true
		return nil
	})
	return ok, err
}

func (r memoryProducts) IncrementStock(ctx context.Context, id string, quantity int) error {
	return r.view.run(func(st *memoryState) error {
		p, found := st.products[id]
		if !found || !p.TrackInventory {
			return nil
		}
		p.Stock += quantity
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		return nil
	})
}

type memoryImages struct{ view memoryView }

func (r memoryImages) PrimaryImageURL(ctx context.Context, productID string) (string, error) {
	var url string
	err := r.view.run(func(st *memoryState) error {
		url = domain.PrimaryImageURL(st.images[productID])
		return nil
	})
	return url, err
}

func (r memoryImages) ListByProduct(ctx context.Context, productID string) ([]domain.ProductImage, error) {
	var out []domain.ProductImage
	err := r.view.run(func(st *memoryState) error {
		out = append(out, st.images[productID]...)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, err
}

func (r memoryImages) ReplaceForProduct(ctx context.Context, productID string, images []domain.ProductImage) error {
	normalized := domain.NormalizeImages(images)
	for i := range normalized {
		normalized[i].ProductID = productID
		if normalized[i].ID == "" {
			normalized[i].ID = uuid.NewString()
		}
	}
	return r.view.run(func(st *memoryState) error {
		if _, ok := st.products[productID]; !ok {
			return &domain.NotFoundError{Entity: "product", ID: productID}
		}
		st.images[productID] = normalized
		return nil
	})
}

type memoryLineItems struct{ view memoryView }

func (r memoryLineItems) Create(ctx context.Context, item *domain.LineItem) error {
	if err := domain.PrepareLineItem(item); err != nil {
		return err
	}
	return r.view.run(func(st *memoryState) error {
		st.lineItems[item.OrderID] = append(st.lineItems[item.OrderID], *item)
		return nil
	})
}

func (r memoryLineItems) ListByOrder(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	var out []domain.LineItem
	err := r.view.run(func(st *memoryState) error {
		out = append(out, st.lineItems[orderID]...)
		return nil
	})
	return out, err
}

type memoryOrders struct{ view memoryView }

func (r memoryOrders) Create(ctx context.Context, order *domain.Order) error {
	return r.view.run(func(st *memoryState) error {
		stored := *order
		stored.Items = nil
		st.orders[order.ID] = stored
		return nil
	})
}

func (r memoryOrders) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var out *domain.Order
	err := r.view.run(func(st *memoryState) error {
		if o, ok := st.orders[id]; ok {
			out = &o
		}
		return nil
	})
	return out, err
}

func (r memoryOrders) UpdateTotals(ctx context.Context, order *domain.Order) error {
	return r.view.run(func(st *memoryState) error {
		stored, ok := st.orders[order.ID]
		if !ok {
			return &domain.NotFoundError{Entity: "order", ID: order.ID}
		}
		stored.Subtotal, stored.Discount, stored.Tax, stored.Total = order.Subtotal, order.Discount, order.Tax, order.Total
		stored.UpdatedAt = time.Now().UTC()
		st.orders[order.ID] = stored
		return nil
	})
}

func (r memoryOrders) TransitionStatus(ctx context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus, reason string) (bool, error) {
	var ok bool
	err := r.view.run(func(st *memoryState) error {
		stored, found := st.orders[id]
		if !found {
			return nil
		}
		for _, s := range from {
			if stored.Status == s {
				stored.Status = to
				stored.CancelReason = reason
				stored.UpdatedAt = time.Now().UTC()
				st.orders[id] = stored
				ok = true
				return nil
			}
		}
		return nil
	})
	return ok, err
}
