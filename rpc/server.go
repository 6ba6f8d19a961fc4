package rpc

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/filecoin-project/go-jsonrpc"
	logging "github.com/ipfs/go-log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/wcgcyx/callsim/metrics"
	"github.com/wcgcyx/callsim/node"
)

// Logger
var log = logging.Logger("rpc-server")

// adminPath is the http path of the admin jsonrpc server.
const adminPath = "/admin"

type Server struct {
	rpc      *rpc.Server
	s        *http.Server
	listener net.Listener
	errChan  chan error
}

// NewServer creates a new rpc server and starts serving.
func NewServer(opts Opts, node *node.Node) (*Server, error) {
	log.Infof("Start API server...")
	srv := rpc.NewServer()
	adminHandle := &adminAPIHandler{
		node: node,
	}
	handlers := map[string]interface{}{
		"eth": &ethAPIHandler{
			opts:   opts,
			node:   node,
			be:     node.Backend,
			oracle: newOracle(node.Backend),
		},
		"debug": &debugAPIHandler{
			opts: opts,
			be:   node.Backend,
		},
		"admin": adminHandle,
	}
	for namespace, handler := range handlers {
		if err := srv.RegisterName(namespace, handler); err != nil {
			srv.Stop()
			return nil, fmt.Errorf("fail to register %v api: %w", namespace, err)
		}
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("%v:%v", opts.Host, opts.Port))
	if err != nil {
		srv.Stop()
		return nil, err
	}
	// The admin api is also served by a jsonrpc server for the admin client.
	adminRPC := jsonrpc.NewServer()
	registerAndSetAlias(adminRPC, "admin", adminHandle)
	mux := http.NewServeMux()
	mux.Handle("/", newCorsHandler(newRPCHandler(srv, opts.CORSOrigins), opts.CORSOrigins))
	mux.Handle(adminPath, adminRPC)
	mux.Handle("/metrics", promhttp.Handler())
	s := &Server{
		rpc: srv,
		s: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		listener: listener,
		errChan:  make(chan error, 1),
	}
	go func() {
		if err := s.s.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("API Server stopped: %v", err.Error())
			s.errChan <- err
		}
	}()
	log.Infof("API Server started on %v.", listener.Addr())
	return s, nil
}

// Addr gets the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Err returns a channel that receives the error if the server stops unexpectedly.
func (s *Server) Err() <-chan error {
	return s.errChan
}

// Attach creates an in-process client of the server.
func (s *Server) Attach() *rpc.Client {
	return rpc.DialInProc(s.rpc)
}

// Close graceful close the component.
func (s *Server) Shutdown() {
	log.Infof("Close API Server...")
	err := s.s.Shutdown(context.Background())
	s.rpc.Stop()
	if err != nil {
		log.Errorf("Fail to close API Server: %v", err.Error())
		return
	}
	log.Infof("API Server closed successfully.")
}

// register handlers and set alias.
func registerAndSetAlias(rpc *jsonrpc.RPCServer, namespace string, handler interface{}) {
	rpc.Register(namespace, handler)
	val := reflect.ValueOf(handler)
	lowerFirstLetter := func(s string) string {
		if len(s) == 0 {
			return s
		}
		r := []rune(s)
		r[0] = unicode.ToLower(r[0])
		return string(r)
	}
	for i := 0; i < val.NumMethod(); i++ {
		method := val.Type().Method(i)
		rpc.AliasMethod(namespace+"_"+lowerFirstLetter(method.Name), namespace+"."+method.Name)
	}
}

// newRPCHandler serves websocket upgrades and plain http requests on the same path.
func newRPCHandler(srv *rpc.Server, allowedOrigins []string) http.Handler {
	ws := srv.WebsocketHandler(allowedOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocket(r) {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	})
}

// newCorsHandler wraps the handler with cors support if any origin is allowed.
func newCorsHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		MaxAge:         600,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(srv)
}

// isWebsocket checks the header of an http request for a websocket upgrade request.
func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// observe records the metrics of a served request.
func observe(method string, start time.Time, errp *error) {
	metrics.RPCRequest(method, time.Since(start))
	if errp != nil && *errp != nil {
		metrics.RPCFailure(method, errorCode(*errp))
	}
}
