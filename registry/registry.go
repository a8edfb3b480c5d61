package registry

import (
	"sync"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/common"
	"github.com/TEENet-io/bridge-indexer/state"
)

// Logical names of the tracked programs and contracts.
const (
	VftManager            = "vft-manager"
	HistoricalProxy       = "historical-proxy"
	BridgingPayment       = "bridging-payment"
	CheckpointLightClient = "checkpoint-light-client"
	Erc20Manager          = "erc20-manager"
	MessageQueue          = "message-queue"
)

// ProgramStore is where the registry is loaded from.
type ProgramStore interface {
	GetPrograms() ([]*state.Program, error)
	GetProgramHistory() ([]*state.Program, error)
}

type programKey struct {
	network agreement.Network
	name    string
}

// Registry maps the logical name of a tracked program to its current address
// and back. It also remembers every address a name ever had. One registry
// belongs to one pipeline.
type Registry struct {
	mu      sync.RWMutex
	byName  map[programKey]string
	byAddr  map[agreement.Network]map[string]string
	history map[programKey]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		byName:  make(map[programKey]string),
		byAddr:  make(map[agreement.Network]map[string]string),
		history: make(map[programKey]map[string]struct{}),
	}
}

// Load replaces the whole mapping by what is stored. Changes made with Set
// and not yet committed are dropped.
func (r *Registry) Load(store ProgramStore) error {
	programs, err := store.GetPrograms()
	if err != nil {
		return err
	}
	history, err := store.GetProgramHistory()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName = make(map[programKey]string, len(programs))
	r.byAddr = make(map[agreement.Network]map[string]string)
	r.history = make(map[programKey]map[string]struct{})
	for _, p := range history {
		r.remember(programKey{p.Network, p.Name}, common.NormalizeAddress(p.Address))
	}
	for _, p := range programs {
		r.set(p.Network, p.Name, p.Address)
	}
	return nil
}

// Set points name at a new address. The old address stops resolving but
// stays in the history.
func (r *Registry) Set(network agreement.Network, name, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(network, name, address)
}

func (r *Registry) set(network agreement.Network, name, address string) {
	address = common.NormalizeAddress(address)
	key := programKey{network, name}

	addrs, ok := r.byAddr[network]
	if !ok {
		addrs = make(map[string]string)
		r.byAddr[network] = addrs
	}
	if old, ok := r.byName[key]; ok {
		delete(addrs, old)
	}

	r.byName[key] = address
	addrs[address] = name
	r.remember(key, address)
}

func (r *Registry) remember(key programKey, address string) {
	known, ok := r.history[key]
	if !ok {
		known = make(map[string]struct{})
		r.history[key] = known
	}
	known[address] = struct{}{}
}

func (r *Registry) Address(network agreement.Network, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.byName[programKey{network, name}]
	return addr, ok
}

// Name returns the logical name of a tracked address.
func (r *Registry) Name(network agreement.Network, address string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byAddr[network][common.NormalizeAddress(address)]
	return name, ok
}

// Is reports whether address is the current address of the program name.
func (r *Registry) Is(network agreement.Network, name, address string) bool {
	got, ok := r.Name(network, address)
	return ok && got == name
}

// WasEver reports whether address is or once was an address of the program
// name, so that messages sent before a migration still count.
func (r *Registry) WasEver(network agreement.Network, name, address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.history[programKey{network, name}][common.NormalizeAddress(address)]
	return ok
}
