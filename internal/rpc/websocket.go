package rpc

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// notificationQueueSize bounds each subscriber's outbound buffer
// (spec.md §4.3's "bounded per wallet connection" backpressure rule);
// on overflow the oldest pending notification is dropped.
const notificationQueueSize = 256

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleUTXOSubscribe upgrades to a websocket and streams UTXO state
// changes for the outpoints/addresses named in the client's first
// message, implementing spec.md §6's UTXOSubscribe wire contract over
// HTTP rather than the libp2p stream layer.
func (s *Server) handleUTXOSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("utxo subscribe upgrade failed")
		return
	}
	defer conn.Close()

	var req UTXOSubscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		return
	}

	sub := newUTXOSubscription(s.utxos, req.Outpoints, req.Addresses)
	defer sub.close()

	var writeMu sync.Mutex
	for change := range sub.notifications() {
		writeMu.Lock()
		err := conn.WriteJSON(UTXOStateNotification{
			Outpoint:  change.Outpoint,
			OldState:  change.OldState.String(),
			NewState:  change.NewState.String(),
			Address:   change.Address,
			Amount:    change.Amount,
			Timestamp: change.Timestamp,
		})
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// utxoSubscription fans the store's per-outpoint/per-address channels
// into a single bounded, drop-oldest output channel for one websocket
// connection.
type utxoSubscription struct {
	store *utxo.Store
	raw   []<-chan utxo.StateChange
	out   chan utxo.StateChange
	done  chan struct{}
	once  sync.Once
}

func newUTXOSubscription(store *utxo.Store, outpoints []types.Outpoint, addresses []types.Address) *utxoSubscription {
	sub := &utxoSubscription{
		store: store,
		out:   make(chan utxo.StateChange, notificationQueueSize),
		done:  make(chan struct{}),
	}
	for _, op := range outpoints {
		ch := store.Subscribe(op)
		sub.raw = append(sub.raw, ch)
		go sub.pump(ch)
	}
	for _, addr := range addresses {
		ch := store.SubscribeAddress(addr)
		sub.raw = append(sub.raw, ch)
		go sub.pump(ch)
	}
	return sub
}

// pump forwards change into the shared output channel, dropping the
// oldest buffered notification rather than blocking when full.
func (s *utxoSubscription) pump(ch <-chan utxo.StateChange) {
	for change := range ch {
		select {
		case s.out <- change:
		default:
			select {
			case <-s.out:
			default:
			}
			select {
			case s.out <- change:
			case <-s.done:
				return
			}
		}
	}
}

func (s *utxoSubscription) notifications() <-chan utxo.StateChange {
	return s.out
}

func (s *utxoSubscription) close() {
	s.once.Do(func() {
		close(s.done)
		for _, ch := range s.raw {
			s.store.Unsubscribe(ch)
		}
	})
}
