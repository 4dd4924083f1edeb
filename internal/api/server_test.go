package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/thermal-bridge/internal/printer"
	"github.com/thereceipt/thermal-bridge/internal/scanner"
	"github.com/thereceipt/thermal-bridge/internal/transport"
)

func unreachable(context.Context, transport.Address) (transport.Conn, error) {
	return nil, context.DeadlineExceeded
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	network := scanner.Func(func(ctx context.Context, emit func(scanner.Found)) error {
		emit(scanner.Found{Address: "10.0.0.5", Model: "TM-T88VI"})
		return nil
	})
	svc := printer.NewService(printer.ServiceOptions{
		Finders: map[printer.Manufacturer]printer.Finder{
			printer.Epson: &printer.EpsonFinder{Scanners: printer.Scanners{Network: network}},
		},
		Drivers: printer.NewDrivers(printer.DriverOptions{Dial: unreachable}),
		Session: printer.SessionOptions{ConnectTimeout: time.Second, CompletionTimeout: time.Second},
	})
	t.Cleanup(svc.Close)
	return NewServer(svc, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHealth(t *testing.T) {
	code, body := doJSON(t, newTestServer(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestFindPrinters(t *testing.T) {
	s := newTestServer(t)

	code, body := doJSON(t, s, http.MethodGet, "/printers/find?manufacturer=epson&type=network", nil)
	require.Equal(t, http.StatusOK, code)
	printers := body["printers"].([]any)
	require.Len(t, printers, 1)
	assert.Equal(t, "TCP:10.0.0.5", printers[0].(map[string]any)["target"])

	code, body = doJSON(t, s, http.MethodGet, "/printers", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["printers"], 1)

	code, _ = doJSON(t, s, http.MethodGet, "/printers/find?manufacturer=star", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, s, http.MethodGet, "/printers/find?type=serial", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConnectManuallyAndName(t *testing.T) {
	s := newTestServer(t)

	code, body := doJSON(t, s, http.MethodPost, "/printers/manual", map[string]any{
		"manufacturer":    "star",
		"connection_type": "network",
		"address":         "192.168.1.40",
		"model":           "TSP100",
	})
	require.Equal(t, http.StatusOK, code, body)
	id := body["printer_id"].(string)
	assert.Equal(t, "star:TCP:192.168.1.40:9100", id)

	code, _ = doJSON(t, s, http.MethodPost, "/printer/name", map[string]any{"printer_id": id, "name": "Bar"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, s, http.MethodPost, "/printer/name", map[string]any{"printer_id": "missing", "name": "Bar"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = doJSON(t, s, http.MethodPost, "/printers/manual", map[string]any{
		"manufacturer":    "epson",
		"connection_type": "network",
		"address":         "999.1.1.1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "Invalid IP address format")

	code, _ = doJSON(t, s, http.MethodPost, "/printer/forget", map[string]any{"printer_id": id})
	assert.Equal(t, http.StatusOK, code)
	code, _ = doJSON(t, s, http.MethodPost, "/printer/forget", map[string]any{"printer_id": id})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSupportedModels(t *testing.T) {
	s := newTestServer(t)

	code, body := doJSON(t, s, http.MethodGet, "/models/epson", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["models"], "TM-T88VI")

	code, _ = doJSON(t, s, http.MethodGet, "/models/zebra", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPrintSync(t *testing.T) {
	s := newTestServer(t)
	device := printer.EpsonDevice{Connection: printer.Network, Target: "TCP:10.0.0.5", DeviceName: "TM-T88VI", Supported: true}

	code, body := doJSON(t, s, http.MethodPost, "/print", map[string]any{"printer": device, "image": "!!!"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ErrorInvalidImage", body["result"])
	assert.Equal(t, "Invalid image data", body["error"])

	code, body = doJSON(t, s, http.MethodPost, "/print", map[string]any{"printer": device, "image": pngBase64(t)})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ErrorOffline", body["result"])

	code, _ = doJSON(t, s, http.MethodPost, "/print", map[string]any{"printer_id": "missing", "image": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doJSON(t, s, http.MethodPost, "/print", map[string]any{"printer_id": "missing"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPrintAsyncAndJobs(t *testing.T) {
	s := newTestServer(t)
	device := printer.EpsonDevice{Connection: printer.Network, Target: "TCP:10.0.0.5", DeviceName: "TM-T88VI", Supported: true}

	code, body := doJSON(t, s, http.MethodPost, "/print", map[string]any{"printer": device, "image": "!!!", "async": true})
	require.Equal(t, http.StatusAccepted, code)
	jobID := body["job_id"].(string)

	require.Eventually(t, func() bool {
		code, body := doJSON(t, s, http.MethodGet, "/job/"+jobID, nil)
		return code == http.StatusOK && body["status"] == "failed"
	}, 2*time.Second, 10*time.Millisecond)

	code, body = doJSON(t, s, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["jobs"], 1)

	code, _ = doJSON(t, s, http.MethodGet, "/job/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCommandEndpoint(t *testing.T) {
	s := newTestServer(t)

	code, body := doJSON(t, s, http.MethodPost, "/command", map[string]any{"command": "models star"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, body = doJSON(t, s, http.MethodPost, "/command", map[string]any{"command": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "unknown command")
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestWebSocketEvents(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventFindPrinters, Data: map[string]any{"manufacturer": "epson"}}))
	found := readUntil(t, conn, EventPrintersFound)
	assert.Len(t, found.Data["printers"], 1)

	device := map[string]any{"manufacturer": "epson", "connection_type": "Network", "target": "TCP:10.0.0.5", "device_name": "TM-T88VI"}
	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventPrintImage, Data: map[string]any{"printer": device, "image": "%%%"}}))
	done := readUntil(t, conn, EventPrintImage)
	assert.Equal(t, false, done.Data["success"])
	assert.Equal(t, "Invalid image data", done.Data["error"])
	assert.NotEmpty(t, done.Data["job_id"])

	s.BroadcastPrinterAdded(printer.NewRongtaDevice(printer.RongtaUSB{VendorID: 0x0FE6, ProductID: 0x811E}))
	added := readUntil(t, conn, EventPrinterAdded)
	assert.Equal(t, "rongta:usb:0FE6:811E", added.Data["id"])

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "dance"}))
	errMsg := readUntil(t, conn, EventError)
	assert.Equal(t, "unknown event: dance", errMsg.Data["error"])
}
