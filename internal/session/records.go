package session

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"
	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/racp"
)

func charLabel(uuid string) string {
	if name := device.CharacteristicName(uuid); name != "" {
		return name
	}
	return device.ShortenUUID(uuid)
}

// startRecordAccess creates the procedure for this connection and requests
// the stored record count.
func (m *Manager) startRecordAccess(gen uint64) {
	m.st.racp = racp.New()
	if m.st.controlPoint == nil {
		missing := &device.NotFoundError{Resource: "record access control point", UUIDs: []string{device.CharacteristicRACP}}
		m.st.racp.Fail(missing.Error())
		m.logger.WithField("device", m.st.deviceID).Warn("No record access control point, only live measurements will be received")
		m.activity("Record access unavailable on %s", m.st.deviceID)
		return
	}

	req, err := m.st.racp.Begin()
	if err != nil {
		m.logger.WithError(err).Error("Record access failed to start")
		return
	}
	m.activity("Requesting stored record count")
	m.writeControlPoint(gen, req)
}

func (m *Manager) writeControlPoint(gen uint64, data []byte) {
	p, cp, id := m.st.peripheral, m.st.controlPoint, m.st.deviceID
	op := racp.Opcode(data[0])
	m.logger.WithFields(logrus.Fields{
		"opcode": op.String(),
		"data":   hex.EncodeToString(data),
	}).Debug("Writing control point")

	m.worker("racp-write", func() {
		err := transportError("write", id, p.Write(cp, data))
		m.post(func() { m.onWritten(gen, op, err) })
	})
}

func (m *Manager) onWritten(gen uint64, op racp.Opcode, err error) {
	if gen != m.st.gen || m.st.racp == nil {
		return
	}
	m.st.racp.Acknowledge(op, err)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"opcode": op.String(),
			"error":  err,
		}).Error("Control point write failed")
		m.activity("Control point write failed (%s): %v", op, err)
	}
	m.publish()
}

// onValue handles a notification or indication for the current connection.
func (m *Manager) onValue(gen uint64, uuid string, data []byte) {
	if gen != m.st.gen {
		return
	}
	if uuid == device.CharacteristicRACP {
		m.onIndication(gen, data)
		return
	}

	meas, err := m.opts.decoder.Decode(uuid, data)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"characteristic": charLabel(uuid),
			"data":           hex.EncodeToString(data),
			"error":          err,
		}).Warn("Dropping undecodable measurement")
		m.activity("Could not decode %s: %v", charLabel(uuid), err)
		m.publish()
		return
	}

	attributed := false
	if m.st.racp != nil {
		attributed = m.st.racp.RecordReceived()
	}
	m.st.measurements = append(m.st.measurements, meas)
	m.logger.WithFields(logrus.Fields{
		"kind":   meas.Kind(),
		"stored": attributed,
	}).Debug("Measurement received")
	m.activity("Received %s", measurement.Summary(meas))
	m.publish()
}

func (m *Manager) onIndication(gen uint64, data []byte) {
	s := m.st.racp
	if s == nil {
		m.logger.WithField("data", hex.EncodeToString(data)).Debug("Ignoring control point indication before record access started")
		return
	}

	out, err := s.HandleIndication(data)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": m.st.deviceID,
			"data":   hex.EncodeToString(data),
			"error":  err,
		}).Warn("Record access halted")
		m.activity("Record access halted: %v", err)
		m.publish()
		return
	}

	if out.Write != nil {
		if st := s.Status(); st.Expected != nil {
			m.activity("Device reports %d stored record(s), requesting transfer", *st.Expected)
		}
		m.writeControlPoint(gen, out.Write)
	}
	if out.Completed {
		m.recordAccessFinished(s.Status())
	}
	m.publish()
}

func (m *Manager) recordAccessFinished(st racp.Status) {
	fields := logrus.Fields{
		"device":   m.st.deviceID,
		"result":   st.Outcome(),
		"received": st.Received,
	}
	if st.Expected != nil {
		fields["expected"] = *st.Expected
	}
	if st.Response != nil {
		fields["response"] = st.Response.Value.String()
	}

	switch st.Outcome() {
	case racp.ResultSuccess:
		m.logger.WithFields(fields).Info("Record transfer complete")
		m.activity("Sync complete: %d record(s)", st.Received)
		if st.Expected != nil && *st.Expected != st.Received {
			m.logger.WithFields(fields).Warn("Record count mismatch")
			m.activity("Device announced %d record(s) but sent %d", *st.Expected, st.Received)
		}
	case racp.ResultEmpty:
		m.logger.WithFields(fields).Info("No stored records")
		m.activity("No stored records")
	case racp.ResultIncomplete:
		m.logger.WithFields(fields).Warn("Record transfer incomplete")
		m.activity("Sync incomplete: %d record(s), device reported %s", st.Received, st.Response.Value)
	default:
		m.logger.WithFields(fields).Warn("Record transfer rejected")
		m.activity("Sync rejected: %s", st.Response)
	}
}
