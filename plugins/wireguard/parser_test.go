package wireguard

import "testing"

func buildInitToResp(senderIndex uint32) []byte {
	buf := make([]byte, lenInitToResp)
	buf[0] = packetTypeInitToResp
	buf[4] = byte(senderIndex)
	buf[5] = byte(senderIndex >> 8)
	buf[6] = byte(senderIndex >> 16)
	buf[7] = byte(senderIndex >> 24)
	return buf
}

func TestClassifyRejectsShortPayload(t *testing.T) {
	_, ok := classify(make([]byte, 10), true, 0, 0)
	if ok {
		t.Fatal("expected short payload to be rejected")
	}
}

func TestClassifyRejectsUnknownType(t *testing.T) {
	buf := make([]byte, minLenTransportData)
	buf[0] = 0x05
	_, ok := classify(buf, true, 0, 0)
	if ok {
		t.Fatal("expected unknown packet type to be rejected")
	}
}

func TestClassifyRejectsNonZeroReservedBytes(t *testing.T) {
	buf := buildInitToResp(42)
	buf[2] = 0x01
	_, ok := classify(buf, true, 0, 0)
	if ok {
		t.Fatal("expected non-zero reserved bytes to be rejected")
	}
}

func TestClassifyInitToRespSetsSrcPeerOnSourceSide(t *testing.T) {
	buf := buildInitToResp(7)
	res, ok := classify(buf, true, 0, 0)
	if !ok {
		t.Fatal("expected a valid init-to-resp message to classify")
	}
	if !res.setSrcPeer || res.srcPeer != 7 {
		t.Fatalf("expected srcPeer=7, got set=%v val=%d", res.setSrcPeer, res.srcPeer)
	}
	if res.setDstPeer {
		t.Fatal("did not expect dstPeer to be set")
	}
}

func TestClassifyInitToRespFlushesOnPeerMismatch(t *testing.T) {
	buf := buildInitToResp(7)
	res, ok := classify(buf, true, 9, 0)
	if ok {
		t.Fatal("expected mismatch to be rejected")
	}
	if !res.needFlush {
		t.Fatal("expected needFlush to be set on peer index mismatch")
	}
}

func TestClassifyRespToInitSwapsOnReverseDirection(t *testing.T) {
	buf := make([]byte, lenRespToInit)
	buf[0] = packetTypeRespToInit
	buf[4], buf[5], buf[6], buf[7] = 1, 0, 0, 0
	buf[8], buf[9], buf[10], buf[11] = 2, 0, 0, 0

	forward, ok := classify(buf, true, 0, 0)
	if !ok {
		t.Fatal("expected resp-to-init to classify")
	}
	if forward.srcPeer != 1 || forward.dstPeer != 2 {
		t.Fatalf("unexpected peers on forward direction: %+v", forward)
	}

	reverse, ok := classify(buf, false, 0, 0)
	if !ok {
		t.Fatal("expected resp-to-init to classify on reverse direction")
	}
	if reverse.srcPeer != 2 || reverse.dstPeer != 1 {
		t.Fatalf("expected swapped peers on reverse direction, got %+v", reverse)
	}
}

func TestClassifyTransportDataRequiresMultipleOf16(t *testing.T) {
	buf := make([]byte, 33)
	buf[0] = packetTypeTransportData
	_, ok := classify(buf, true, 0, 0)
	if ok {
		t.Fatal("expected non-multiple-of-16 transport data to be rejected")
	}
}

func TestClassifyFlagsDNSLookingPayloadAsLowConfidence(t *testing.T) {
	buf := buildInitToResp(3)
	buf[4], buf[5], buf[6], buf[7] = 0x00, 0x01, 0x00, 0x00
	res, ok := classify(buf, true, 0, 0)
	if !ok {
		t.Fatal("expected classification to succeed")
	}
	if res.confidence != confidenceLow {
		t.Fatalf("expected low confidence for DNS-query-shaped header, got %d", res.confidence)
	}
}
