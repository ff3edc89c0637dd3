package testnet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/opd-ai/meetcore/transport"
)

// ErrPeerUnreachable indicates no node is registered under the target
// address.
var ErrPeerUnreachable = errors.New("peer unreachable")

// Broker routes traffic between in-memory networks.
type Broker struct {
	mu    sync.Mutex
	nodes map[string]*Network
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{nodes: make(map[string]*Network)}
}

// NewNetwork creates a network attached to this broker. The result
// implements transport.Network.
func (b *Broker) NewNetwork() *Network {
	return &Network{broker: b}
}

func (b *Broker) register(address string, n *Network) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.nodes[address]; ok && existing != n {
		return fmt.Errorf("address %q already registered", address)
	}
	b.nodes[address] = n
	return nil
}

func (b *Broker) unregister(address string, n *Network) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.nodes[address]; ok && existing == n {
		delete(b.nodes, address)
	}
}

func (b *Broker) lookup(address string) (*Network, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[address]
	return n, ok
}

// Network is one node on the broker. It implements transport.Network.
type Network struct {
	broker *Broker

	mu        sync.Mutex
	callbacks transport.NetworkCallbacks
	address   string
	open      bool
}

var _ transport.Network = (*Network)(nil)

// SetCallbacks installs the event sink.
func (n *Network) SetCallbacks(callbacks transport.NetworkCallbacks) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callbacks = callbacks
}

func (n *Network) cbs() transport.NetworkCallbacks {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.callbacks
}

// Open registers the address with the broker and confirms asynchronously
// through OnOpen.
func (n *Network) Open(address string) error {
	if err := n.broker.register(address, n); err != nil {
		return err
	}

	n.mu.Lock()
	// A node re-opening under a new address abandons the old one.
	if n.address != "" && n.address != address {
		old := n.address
		n.mu.Unlock()
		n.broker.unregister(old, n)
		n.mu.Lock()
	}
	n.address = address
	n.open = true
	cb := n.callbacks.OnOpen
	n.mu.Unlock()

	if cb != nil {
		cb(address)
	}
	return nil
}

// Address returns the registered address.
func (n *Network) Address() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.address
}

// Call places a media call to the remote node.
func (n *Network) Call(remoteAddress string, media *transport.LocalMedia, meta transport.CallMetadata) (transport.MediaSession, error) {
	n.mu.Lock()
	if !n.open {
		n.mu.Unlock()
		return nil, transport.ErrTransportUnavailable
	}
	localAddr := n.address
	n.mu.Unlock()

	remote, ok := n.broker.lookup(remoteAddress)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnreachable, remoteAddress)
	}

	link := &mediaLink{callerMediaID: uuid.NewString(), calleeMediaID: uuid.NewString()}
	callerSide := &mediaSession{link: link, owner: n, peer: remote, remoteAddr: remoteAddress, meta: meta, caller: true}
	calleeSide := &mediaSession{link: link, owner: remote, peer: n, remoteAddr: localAddr, meta: meta}
	link.caller = callerSide
	link.callee = calleeSide

	if cb := remote.cbs().OnIncomingCall; cb != nil {
		cb(calleeSide)
	}
	return callerSide, nil
}

// Connect opens a labelled data session to the remote node.
func (n *Network) Connect(remoteAddress, label string) (transport.DataSession, error) {
	n.mu.Lock()
	if !n.open {
		n.mu.Unlock()
		return nil, transport.ErrTransportUnavailable
	}
	localAddr := n.address
	n.mu.Unlock()

	remote, ok := n.broker.lookup(remoteAddress)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnreachable, remoteAddress)
	}

	link := &dataLink{open: true}
	local := &dataSession{link: link, peer: remote, remoteAddr: remoteAddress, label: label}
	remoteSide := &dataSession{link: link, peer: n, remoteAddr: localAddr, label: label}
	link.a = local
	link.b = remoteSide

	if cb := remote.cbs().OnIncomingData; cb != nil {
		cb(remoteSide)
	}
	return local, nil
}

// Close drops the registration. Open sessions report closed afterwards.
func (n *Network) Close() error {
	n.mu.Lock()
	address := n.address
	n.open = false
	n.address = ""
	n.mu.Unlock()

	if address != "" {
		n.broker.unregister(address, n)
	}
	return nil
}

// SimulateDisconnect drops the registration and fires OnDisconnected, as
// a broken broker connection would.
func (n *Network) SimulateDisconnect() {
	n.mu.Lock()
	address := n.address
	n.open = false
	cb := n.callbacks.OnDisconnected
	n.mu.Unlock()

	if address != "" {
		n.broker.unregister(address, n)
	}
	if cb != nil {
		cb()
	}
}
