package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type scriptedFrame struct {
	binary bool
	text   string
}

// fakeComfy is a minimal ComfyUI backend. Once a prompt is queued it plays
// the scripted frames to the event channel of the submitting client id.
type fakeComfy struct {
	t      *testing.T
	server *httptest.Server

	promptID string
	frames   []scriptedFrame
	history  string
	images   map[string][]byte
	reject   string // body of a 400 response to POST /prompt

	mu          sync.Mutex
	conns       map[string]*websocket.Conn
	wsHeaders   http.Header
	prompts     []map[string]json.RawMessage
	interrupts  []string
	deletes     []string
	authHeaders []string
}

func newFakeComfy(t *testing.T) *fakeComfy {
	t.Helper()
	f := &fakeComfy{
		t:        t,
		promptID: "prompt-1",
		images:   make(map[string][]byte),
		conns:    make(map[string]*websocket.Conn),
	}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 0}}, "sid": "x"}}`))
		// registered only after the greeting so scripted writes never overlap it
		f.mu.Lock()
		f.conns[r.URL.Query().Get("clientId")] = conn
		f.wsHeaders = r.Header.Clone()
		f.mu.Unlock()
		// drain until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		if r.Method != http.MethodPost {
			io.WriteString(w, `{"exec_info": {"queue_remaining": 2}}`)
			return
		}
		body := make(map[string]json.RawMessage)
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.prompts = append(f.prompts, body)
		f.mu.Unlock()

		if f.reject != "" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, f.reject)
			return
		}

		var clientID string
		json.Unmarshal(body["client_id"], &clientID)
		io.WriteString(w, `{"prompt_id": "`+f.promptID+`", "number": 7, "node_errors": {}}`)
		go f.play(clientID)
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		if strings.TrimPrefix(r.URL.Path, "/history/") != f.promptID || f.history == "" {
			io.WriteString(w, `{}`)
			return
		}
		io.WriteString(w, f.history)
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f.mu.Lock()
		data, ok := f.images[q.Get("type")+"/"+q.Get("subfolder")+"/"+q.Get("filename")]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})
	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		kind, subfolder, name := r.FormValue("type"), r.FormValue("subfolder"), header.Filename
		f.mu.Lock()
		defer f.mu.Unlock()
		// like ComfyUI, keep existing files unless asked to overwrite
		for i := 1; r.FormValue("overwrite") != "true"; i++ {
			if _, exists := f.images[kind+"/"+subfolder+"/"+name]; !exists {
				break
			}
			ext := path.Ext(header.Filename)
			name = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(header.Filename, ext), i, ext)
		}
		f.images[kind+"/"+subfolder+"/"+name] = data
		json.NewEncoder(w).Encode(map[string]string{"name": name, "subfolder": subfolder, "type": kind})
	})
	mux.HandleFunc("/interrupt", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.interrupts = append(f.interrupts, string(body))
		f.mu.Unlock()
	})
	mux.HandleFunc("/queue", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.deletes = append(f.deletes, string(body))
		f.mu.Unlock()
	})
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"system": {"os": "posix", "python_version": "3.11", "comfyui_version": "0.3.40"}, "devices": [{"name": "cuda:0", "type": "cuda", "vram_total": 100}]}`)
	})
	mux.HandleFunc("/object_info", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"KSampler": {"input": {"required": {"sampler_name": [["euler", "dpmpp_2m"], {}]}}}}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeComfy) recordAuth(r *http.Request) {
	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.mu.Unlock()
}

func (f *fakeComfy) conn(clientID string) *websocket.Conn {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		conn := f.conns[clientID]
		f.mu.Unlock()
		if conn != nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func (f *fakeComfy) play(clientID string) {
	conn := f.conn(clientID)
	if conn == nil {
		return
	}
	for _, fr := range f.frames {
		mt := websocket.TextMessage
		data := []byte(fr.text)
		if fr.binary {
			mt = websocket.BinaryMessage
			data = []byte{0, 0, 0, 1, 0x89, 'P', 'N', 'G'}
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

// send writes frames straight to an open event channel
func (f *fakeComfy) send(clientID string, frames ...scriptedFrame) {
	f.frames = frames
	f.play(clientID)
}

func (f *fakeComfy) client(t *testing.T, opts ...Option) *ComfyClient {
	t.Helper()
	c, err := NewComfyClient(f.server.URL, opts...)
	if err != nil {
		t.Fatalf("NewComfyClient failed: %v", err)
	}
	return c
}

func text(s string) scriptedFrame {
	return scriptedFrame{text: s}
}

func binary() scriptedFrame {
	return scriptedFrame{binary: true}
}
