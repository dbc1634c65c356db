package snmp

import (
	"context"

	"github.com/gosnmp/gosnmp"
)

type gosnmpSession struct {
	params *gosnmp.GoSNMP
}

func dial(ctx context.Context, t target) (session, error) {
	params := &gosnmp.GoSNMP{
		Target:    t.host,
		Port:      t.port,
		Community: t.community,
		Version:   t.version,
		Timeout:   t.timeout,
		Retries:   t.retries,
		Context:   ctx,
		MaxOids:   gosnmp.MaxOids,
	}
	if err := params.Connect(); err != nil {
		return nil, err
	}
	return &gosnmpSession{params: params}, nil
}

func (s *gosnmpSession) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return s.params.Get(oids)
}

// Walk uses GETBULK where the protocol version has it.
func (s *gosnmpSession) Walk(root string, fn gosnmp.WalkFunc) error {
	if s.params.Version == gosnmp.Version1 {
		return s.params.Walk(root, fn)
	}
	return s.params.BulkWalk(root, fn)
}

func (s *gosnmpSession) Close() error {
	if s.params.Conn == nil {
		return nil
	}
	return s.params.Conn.Close()
}
