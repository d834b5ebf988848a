// Package monitoring serves the live state of a world over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/nbmsg/comm"
	"github.com/sarchlab/nbmsg/monitoring/web"
)

// Monitor turns a running world into a server that can be inspected while
// requests are in flight.
type Monitor struct {
	world           *comm.World
	portNumber      int
	profileDuration time.Duration
	listener        net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterWorld sets the world to be monitored.
func (m *Monitor) RegisterWorld(w *comm.World) {
	m.world = w
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring world with %s\n", url)

	go func() {
		err := http.Serve(listener, m.router())
		if err != nil && !errors.Is(err, net.ErrClosed) {
			dieOnErr(err)
		}
	}()

	return url
}

// StopServer stops accepting connections.
func (m *Monitor) StopServer() error {
	if m.listener == nil {
		return nil
	}

	return m.listener.Close()
}

// OpenBrowser shows the monitor page in the default browser.
func (m *Monitor) OpenBrowser(url string) error {
	return browser.OpenURL(url)
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/world", m.worldInfo)
	r.HandleFunc("/api/list_endpoints", m.listEndpoints)
	r.HandleFunc("/api/endpoint/{name}", m.endpointDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/pending", m.listPending)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(web.Handler())

	return r
}

type worldRsp struct {
	Name      string   `json:"name"`
	Size      int      `json:"size"`
	Endpoints []string `json:"endpoints"`
}

func (m *Monitor) worldInfo(w http.ResponseWriter, _ *http.Request) {
	rsp := worldRsp{
		Name: m.world.Name(),
		Size: m.world.Size(),
	}

	for _, e := range m.world.Endpoints() {
		rsp.Endpoints = append(rsp.Endpoints, e.Name())
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listEndpoints(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, e := range m.world.Endpoints() {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "\"%s\"", e.Name())
	}
	fmt.Fprint(w, "]")
}

// endpointSnapshot is what the monitor shows of an endpoint. Endpoints are
// read under the world lock, so they are copied before serialization.
type endpointSnapshot struct {
	Name    string
	Rank    comm.Rank
	Pending []comm.RequestInfo
}

func snapshot(e *comm.Endpoint) *endpointSnapshot {
	s := &endpointSnapshot{
		Name: e.Name(),
		Rank: e.Rank(),
	}

	for _, req := range e.Pending() {
		s.Pending = append(s.Pending, req.Info())
	}

	return s
}

func (m *Monitor) endpointDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	e := m.findEndpointOr404(w, name)
	if e == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(snapshot(e))
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	EndpointName string `json:"endpoint_name,omitempty"`
	FieldName    string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	e := m.findEndpointOr404(w, req.EndpointName)
	if e == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(snapshot(e))
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findEndpointOr404(
	w http.ResponseWriter,
	name string,
) *comm.Endpoint {
	for _, e := range m.world.Endpoints() {
		if e.Name() == name {
			return e
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Endpoint not found"))
	dieOnErr(err)

	return nil
}

// listPending reports the requests that have not been consumed. The
// parameters sort (age or bytes), limit and offset select what is shown.
func (m *Monitor) listPending(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := pendingParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	reqs := []comm.RequestInfo{}
	for _, e := range m.world.Endpoints() {
		for _, req := range e.Pending() {
			reqs = append(reqs, req.Info())
		}
	}

	writeJSON(w, sortAndSelectRequests(reqs, sortMethod, limit, offset))
}

func pendingParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "age"
	}

	if sortMethod != "age" && sortMethod != "bytes" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `age` and `bytes`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return "", 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return "", 0, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}

	return n, nil
}

// sortAndSelectRequests orders the requests oldest first, or largest first
// when sorting by bytes. A limit of 0 selects everything after offset.
func sortAndSelectRequests(
	reqs []comm.RequestInfo,
	sortMethod string,
	limit, offset int,
) []comm.RequestInfo {
	switch sortMethod {
	case "age":
		sort.SliceStable(reqs, func(i, j int) bool {
			return reqs[i].PostedAt.Before(reqs[j].PostedAt)
		})
	case "bytes":
		sort.SliceStable(reqs, func(i, j int) bool {
			return reqs[i].Bytes > reqs[j].Bytes
		})
	default:
		panic("invalid sort method " + sortMethod)
	}

	if offset > len(reqs) {
		offset = len(reqs)
	}

	end := len(reqs)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}

	return reqs[offset:end]
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
