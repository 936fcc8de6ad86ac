package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeAdvertiser is a test double for Advertiser, standing in for a
// real mDNS responder in tests that only care about call sequencing.
type fakeAdvertiser struct {
	registered []Service
	started    bool
	stopped    bool
}

func (f *fakeAdvertiser) RegisterService(s Service) error {
	f.registered = append(f.registered, s)
	return nil
}
func (f *fakeAdvertiser) Start() error { f.started = true; return nil }
func (f *fakeAdvertiser) Stop()        { f.stopped = true }

func TestFakeAdvertiserSatisfiesInterface(t *testing.T) {
	var a Advertiser = &fakeAdvertiser{}
	require := assert.New(t)
	require.NoError(a.RegisterService(Service{Name: "_nmos-query._tcp", Port: 3211}))
	require.NoError(a.Start())
	a.Stop()

	fa := a.(*fakeAdvertiser)
	assert.Len(t, fa.registered, 1)
	assert.True(t, fa.started)
	assert.True(t, fa.stopped)
}

func TestTxtRecordsIncludesProtoVersionAndPriority(t *testing.T) {
	txt := TxtRecords(100)
	assert.Contains(t, txt, "api_proto=http")
	assert.Contains(t, txt, "api_ver=v1.0,v1.1,v1.2")
	assert.Contains(t, txt, "pri=100")
}
