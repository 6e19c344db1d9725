package rpc

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/pkg/types"
)

func TestUTXOSubscribe_DeliversStateChange(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	outpoint := types.Outpoint{TxID: types.Hash{0x02}, Index: 1}
	if err := srv.utxos.Put(&utxo.UTXO{
		Outpoint: outpoint,
		Value:    100,
		Script:   types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)},
		State:    utxo.StateUnspent,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/utxo/subscribe", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}

	req := UTXOSubscribeRequest{Outpoints: []types.Outpoint{outpoint}, SubscriberID: "wallet-1"}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	// Give the server goroutine time to register the subscription before
	// the state transition fires.
	time.Sleep(50 * time.Millisecond)

	if err := srv.utxos.MarkLocked(outpoint, types.Hash{0x03}); err != nil {
		t.Fatalf("MarkLocked: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var notif UTXOStateNotification
	if err := conn.ReadJSON(&notif); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if notif.Outpoint != outpoint {
		t.Errorf("outpoint = %+v, want %+v", notif.Outpoint, outpoint)
	}
	if notif.OldState != "unspent" || notif.NewState != "locked" {
		t.Errorf("states = %s -> %s, want unspent -> locked", notif.OldState, notif.NewState)
	}
}

func TestUTXOSubscribe_RequiresUpgrade(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	resp, err := http.Get("http://" + srv.Addr() + "/utxo/subscribe")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Error("plain GET should not switch protocols")
	}
}
