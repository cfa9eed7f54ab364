package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/config"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/descriptor"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/log"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
)

const (
	appName = "MTConnectUaServer"

	// ServerNamespace holds the MTConnect folder every exported tree is organized under.
	ServerNamespace = "http://github.com/amine-amaach/simulators/mtConnectOPCUA"
	rootFolderName  = "MTConnect"

	samplingInterval = 250.0
)

// UaSrvService hosts instance trees in an OPC UA server and keeps the server nodes in
// step with the change notifications of the address space.
type UaSrvService struct {
	server *server.Server
	logger *zap.SugaredLogger
	folder ua.NodeID
}

func (s *UaSrvService) GetServer() *server.Server {
	return s.server
}

// Folder returns the server NodeID of the MTConnect folder.
func (s *UaSrvService) Folder() ua.NodeID {
	return s.folder
}

// NewUaSrvService creates the PKI if needed, the server and the MTConnect folder under
// the Objects folder. The server is not listening until ListenAndServe.
func NewUaSrvService(cfg config.Server, logger *zap.SugaredLogger) (*UaSrvService, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	srv, err := createUaServer(cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, "create opc ua server")
	}
	nsi := srv.NamespaceManager().Add(ServerNamespace)
	s := &UaSrvService{server: srv, logger: logger, folder: ua.NodeIDString{NamespaceIndex: nsi, ID: rootFolderName}}

	// add the 'MTConnect' folder.
	mtconnect := server.NewObjectNode(
		srv,
		s.folder,
		ua.QualifiedName{NamespaceIndex: nsi, Name: rootFolderName},
		ua.LocalizedText{Text: "MTConnect"},
		ua.LocalizedText{Text: "A parent object for the MTConnect devices."},
		nil,
		[]ua.Reference{
			ua.NewReference(ua.ReferenceTypeIDHasTypeDefinition, false, ua.NewExpandedNodeID(addressspace.FolderType)),
			ua.NewReference(ua.ReferenceTypeIDOrganizes, true, ua.NewExpandedNodeID(ua.ObjectIDObjectsFolder)),
		},
		0,
	)
	if err := srv.NamespaceManager().AddNode(mtconnect); err != nil {
		return nil, errors.Wrap(err, "add MTConnect folder")
	}
	return s, nil
}

// ListenAndServe blocks until the server is closed.
func (s *UaSrvService) ListenAndServe() error {
	desc := log.Colorize(s.server.LocalDescription().ApplicationName.Text, log.Magenta)
	endpoint := log.Colorize(s.server.EndpointURL(), log.Cyan)
	s.logger.Infof("%s '%s' at '%s'", log.Colorize("Starting server ", log.Cyan), desc, endpoint)
	err := s.server.ListenAndServe()
	if err == ua.BadServerHalted {
		return nil
	}
	return errors.Wrap(err, "Error starting server")
}

func (s *UaSrvService) Close() error {
	s.logger.Info(log.Colorize("OPC UA server closed ✖️", log.Magenta))
	return s.server.Close()
}

// translator maps indices of the namespace table uris to the server table, adding the
// missing namespaces to the server.
func (s *UaSrvService) translator(uris []string) descriptor.Translator {
	nm := s.server.NamespaceManager()
	for _, uri := range uris[1:] {
		nm.Add(uri)
	}
	return descriptor.Translator{From: uris, To: nm.NamespaceUris()}
}

// ExportTypes adds the object, variable and data types registered outside namespace 0.
func (s *UaSrvService) ExportTypes(reg *registry.Registry) error {
	t := s.translator(reg.NamespaceURIs())
	var nodes []server.Node
	for _, k := range reg.Kinds() {
		if descriptor.NamespaceIndex(k.TypeID) == 0 {
			continue
		}
		super := reg.SuperType(k.TypeID)
		if k.Parent != nil {
			super = k.Parent.TypeID
		}
		node, err := typeNode(s.server, t, k, super)
		if err != nil {
			return errors.Wrapf(err, "export type %s", k.BrowseName.Name)
		}
		if node != nil {
			nodes = append(nodes, node)
		}
	}
	return s.server.NamespaceManager().AddNodes(nodes...)
}

func typeNode(srv *server.Server, t descriptor.Translator, k *addressspace.Kind, super ua.NodeID) (server.Node, error) {
	id, err := t.NodeID(k.TypeID)
	if err != nil {
		return nil, err
	}
	browseName, err := t.QualifiedName(k.BrowseName)
	if err != nil {
		return nil, err
	}
	if super, err = t.NodeID(super); err != nil {
		return nil, err
	}
	var refs []ua.Reference
	if super != nil {
		refs = append(refs, ua.NewReference(ua.ReferenceTypeIDHasSubtype, true, ua.NewExpandedNodeID(super)))
	}
	displayName := k.DisplayName
	if displayName.Text == "" {
		displayName = ua.LocalizedText{Text: k.BrowseName.Name}
	}
	switch k.NodeClass {
	case ua.NodeClassObjectType:
		return server.NewObjectTypeNode(srv, id, browseName, displayName, ua.LocalizedText{}, nil, refs, k.IsAbstract), nil
	case ua.NodeClassVariableType:
		dataType, rank, dims := k.EffectiveDataType()
		if dataType, err = t.NodeID(dataType); err != nil {
			return nil, err
		}
		if dims == nil {
			dims = []uint32{}
		}
		return server.NewVariableTypeNode(srv, id, browseName, displayName, ua.LocalizedText{}, nil, refs, ua.DataValue{}, dataType, rank, dims, k.IsAbstract), nil
	case ua.NodeClassDataType:
		return server.NewDataTypeNode(srv, id, browseName, displayName, ua.LocalizedText{}, nil, refs, k.IsAbstract, nil), nil
	}
	return nil, nil
}

// Export adds the tree under root to the server, organized under the MTConnect folder.
func (s *UaSrvService) Export(ctx *addressspace.Context, root *addressspace.Node) error {
	ctx.Lock()
	defer ctx.Unlock()
	return s.export(ctx, root, s.folder, ua.ReferenceTypeIDOrganizes)
}

// export adds n and its descendants below parent, a server NodeID. The caller holds the
// context lock.
func (s *UaSrvService) export(ctx *addressspace.Context, n *addressspace.Node, parent, ref ua.NodeID) error {
	t := s.translator(ctx.NamespaceURIs())
	var nodes []server.Node
	var walk func(n *addressspace.Node, parent, ref ua.NodeID) error
	walk = func(n *addressspace.Node, parent, ref ua.NodeID) error {
		node, err := s.instanceNode(t, n, parent, ref)
		if err != nil {
			return errors.Wrapf(err, "export %s", n.BrowsePath())
		}
		nodes = append(nodes, node)
		for _, c := range n.Children() {
			if err := walk(c, node.NodeID(), c.ReferenceTypeID()); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(n, parent, ref); err != nil {
		return err
	}
	return s.server.NamespaceManager().AddNodes(nodes...)
}

// instanceNode builds the server node of n with its type definition and the inverse
// reference to parent.
func (s *UaSrvService) instanceNode(t descriptor.Translator, n *addressspace.Node, parent, ref ua.NodeID) (server.Node, error) {
	id, err := t.NodeID(n.NodeID())
	if err != nil {
		return nil, err
	}
	browseName, err := t.QualifiedName(n.BrowseName())
	if err != nil {
		return nil, err
	}
	typeDef, err := t.NodeID(typeDefinition(n))
	if err != nil {
		return nil, err
	}
	refs := []ua.Reference{
		ua.NewReference(ua.ReferenceTypeIDHasTypeDefinition, false, ua.NewExpandedNodeID(typeDef)),
		ua.NewReference(ref, true, ua.NewExpandedNodeID(parent)),
	}
	for _, r := range n.References() {
		if r.TargetID.ServerIndex > 0 || r.TargetID.NamespaceURI != "" {
			refs = append(refs, r)
			continue
		}
		target, err := t.NodeID(r.TargetID.NodeID)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ua.NewReference(r.ReferenceTypeID, r.IsInverse, ua.NewExpandedNodeID(target)))
	}

	if !n.IsVariable() {
		return server.NewObjectNode(s.server, id, browseName, n.DisplayName(), n.Description(), nil, refs, 0), nil
	}
	dataType, err := t.NodeID(n.DataType())
	if err != nil {
		return nil, err
	}
	dims := n.ArrayDimensions()
	if dims == nil {
		dims = []uint32{}
	}
	return server.NewVariableNode(
		s.server,
		id,
		browseName,
		n.DisplayName(),
		n.Description(),
		nil,
		refs,
		n.DataValue(),
		dataType,
		n.ValueRank(),
		dims,
		ua.AccessLevelsCurrentRead|ua.AccessLevelsHistoryRead,
		samplingInterval,
		false,
		s.server.Historian(),
	), nil
}

// OnNodeChanged implements addressspace.Observer. Values are copied to the server node,
// new children are exported and deleted nodes are removed with their descendants.
func (s *UaSrvService) OnNodeChanged(ctx *addressspace.Context, n *addressspace.Node, mask addressspace.ChangeMask) {
	nm := s.server.NamespaceManager()
	t := s.translator(ctx.NamespaceURIs())
	id, err := t.NodeID(n.NodeID())
	if err != nil || id == nil {
		return
	}
	if mask.Has(addressspace.ChangeMaskDeleted) {
		if node, ok := nm.FindNode(id); ok {
			if err := nm.DeleteNode(node, true); err != nil {
				s.logger.Errorw("delete node", "node", n.BrowsePath(), "error", err)
			}
		}
		return
	}
	if mask.Has(addressspace.ChangeMaskValue) {
		if node, ok := nm.FindVariable(id); ok {
			node.SetValue(n.DataValue())
		}
	}
	if !mask.Has(addressspace.ChangeMaskChildren) {
		return
	}
	if _, ok := nm.FindNode(id); !ok {
		return
	}
	for _, c := range n.Children() {
		cid, err := t.NodeID(c.NodeID())
		if err != nil {
			continue
		}
		if _, ok := nm.FindNode(cid); ok {
			continue
		}
		if err := s.export(ctx, c, id, c.ReferenceTypeID()); err != nil {
			s.logger.Errorw("export child", "node", c.BrowsePath(), "error", err)
		}
	}
}

func typeDefinition(n *addressspace.Node) ua.NodeID {
	if id := n.TypeDefinitionID(); id != nil {
		return id
	}
	if n.IsVariable() {
		return addressspace.BaseDataVariableType
	}
	return addressspace.BaseObjectType
}

func createUaServer(cfg config.Server, logger *zap.SugaredLogger) (*server.Server, error) {
	pkiDir := cfg.PKIDir
	if pkiDir == "" {
		pkiDir = "./uaServerCerts/pki"
	}
	if err := ensurePKI(pkiDir, cfg.Certificate, cfg.Host); err != nil {
		logger.Errorw("PKI not created", "dir", pkiDir, "error", err)
	}
	users, err := hashUsers(cfg.Users)
	if err != nil {
		return nil, err
	}
	// create the endpoint url from hostname and port
	endpointURL := fmt.Sprintf("opc.tcp://%s:%d", cfg.Host, cfg.Port)
	return server.New(
		ua.ApplicationDescription{
			ApplicationURI: fmt.Sprintf("urn:%s:%s", cfg.Host, appName),
			ProductURI:     "http://github.com/awcullen/opcua",
			ApplicationName: ua.LocalizedText{
				Text:   fmt.Sprintf("%s@%s", appName, cfg.Host),
				Locale: "en",
			},
			ApplicationType: ua.ApplicationTypeServer,
			DiscoveryURLs:   []string{endpointURL},
		},
		filepath.Join(pkiDir, "server.crt"),
		filepath.Join(pkiDir, "server.key"),
		endpointURL,
		server.WithBuildInfo(
			ua.BuildInfo{
				ProductURI:       "http://github.com/awcullen/opcua",
				ManufacturerName: "awcullen",
				ProductName:      appName,
				SoftwareVersion:  "latest",
			}),
		server.WithAnonymousIdentity(true),
		server.WithAuthenticateUserNameIdentityFunc(authenticator(users, logger)),
		server.WithSecurityPolicyNone(true),
		server.WithInsecureSkipVerify(),
		server.WithServerDiagnostics(true),
	)
}

// hashUsers returns the configured identities with bcrypt hashed passwords.
func hashUsers(users []config.User) ([]ua.UserNameIdentity, error) {
	out := make([]ua.UserNameIdentity, 0, len(users))
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), 8)
		if err != nil {
			return nil, errors.Wrapf(err, "hash password of %s", u.Username)
		}
		out = append(out, ua.UserNameIdentity{UserName: u.Username, Password: string(hash)})
	}
	return out, nil
}

func authenticator(users []ua.UserNameIdentity, logger *zap.SugaredLogger) func(ua.UserNameIdentity, string, string) error {
	return func(userIdentity ua.UserNameIdentity, applicationURI string, endpointURL string) error {
		for _, user := range users {
			if user.UserName != userIdentity.UserName {
				continue
			}
			if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(userIdentity.Password)); err == nil {
				logger.Debugw("login", "user", userIdentity.UserName, "application", applicationURI)
				return nil
			}
		}
		return ua.BadUserAccessDenied
	}
}

func ensurePKI(dir string, certificateAdditions config.Certificate, host string) error {
	// check if the pki directory already exists
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(dir, os.ModeDir|0755); err != nil {
		return err
	}
	return createNewCertificate(dir, appName, certificateAdditions, host)
}

// localIP returns the address used for outbound traffic, or loopback when there is no route.
func localIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP
}

func createNewCertificate(dir, appName string, certificateAdditions config.Certificate, host string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return ua.BadCertificateInvalid
	}

	applicationURI, _ := url.Parse(fmt.Sprintf("urn:%s:%s", host, appName))
	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	subjectKeyHash := sha1.New()
	subjectKeyHash.Write(key.PublicKey.N.Bytes())
	subjectKeyId := subjectKeyHash.Sum(nil)

	dnsNames := append([]string{host}, certificateAdditions.AdditionalHosts...)

	ipAddresses := []net.IP{localIP()}
	for _, ipString := range certificateAdditions.AdditionalIPs {
		ip := net.ParseIP(ipString)
		if ip == nil {
			continue
		}
		ipAddresses = append(ipAddresses, ip)
	}

	uris := []*url.URL{applicationURI}
	for _, h := range certificateAdditions.AdditionalHosts {
		if u, err := url.Parse(fmt.Sprintf("urn:%s:%s", h, appName)); err == nil {
			uris = append(uris, u)
		}
	}

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: appName},
		SubjectKeyId:          subjectKeyId,
		AuthorityKeyId:        subjectKeyId,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
		URIs:                  uris,
	}

	rawcrt, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return ua.BadCertificateInvalid
	}
	if err := writePEM(filepath.Join(dir, "server.crt"), &pem.Block{Type: "CERTIFICATE", Bytes: rawcrt}); err != nil {
		return err
	}
	return writePEM(filepath.Join(dir, "server.key"), &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, block); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
