package docsis

import (
	"fmt"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/field"
	"github.com/tonylturner/tlvscope/internal/tlv"
)

// TLV tags shared by OCD and DPD.
const (
	tagSubcarrierAssignment       = 5
	tagSubcarrierAssignmentVector = 6
)

// Subcarrier assignment types, from the top two bits of the control byte.
const (
	assignRangeContinuous = 0
	assignRangeSkip       = 1
	assignList            = 2
)

var assignmentTypes = codec.ValueMap{
	assignRangeContinuous: "range, continuous",
	assignRangeSkip:       "range, skip by 1",
	assignList:            "list",
	3:                     "reserved",
}

var modulations = codec.ValueMap{
	0:  "zero-bit loaded",
	1:  "reserved",
	2:  "QPSK",
	3:  "reserved",
	4:  "16-QAM",
	5:  "64-QAM",
	6:  "128-QAM",
	7:  "256-QAM",
	8:  "512-QAM",
	9:  "1024-QAM",
	10: "2048-QAM",
	11: "4096-QAM",
	12: "8192-QAM",
	13: "16384-QAM",
	14: "reserved",
	15: "reserved",
}

var subcarrierUsages = codec.ValueMap{
	1: "data",
	2: "PLC",
	3: "continuous pilot",
	4: "excluded",
	5: "unused",
}

var dftSizes = codec.ValueMap{
	0: "4096 subcarriers at 50 kHz spacing",
	1: "8192 subcarriers at 25 kHz spacing",
}

var cyclicPrefixes = codec.ValueMap{
	0: "192 samples",
	1: "256 samples",
	2: "512 samples",
	3: "768 samples",
	4: "1024 samples",
}

var rollOffPeriods = codec.ValueMap{
	0: "0 samples",
	1: "64 samples",
	2: "128 samples",
	3: "192 samples",
	4: "256 samples",
}

var yesNo = codec.ValueMap{0: "no", 1: "yes"}

var dpdWalker = tlv.MustNew(tlv.Config{
	Protocol:    "docsis_dpd",
	TagWidth:    1,
	LengthWidth: 1,
	Endian:      cursor.BigEndian,
	Lengths: map[uint64]tlv.LengthRule{
		tagSubcarrierAssignmentVector: {Width: 2},
	},
	Records: map[uint64]tlv.Record{
		tagSubcarrierAssignment: {
			Name:    "Subcarrier Assignment Range/List",
			Handler: subcarrierAssignment(codec.Bit{Label: "Modulation", Mask: 0x0F, Values: modulations}),
		},
		tagSubcarrierAssignmentVector: {
			Name:    "Subcarrier Assignment Vector",
			Handler: dissector.HandlerFunc(assignmentVector),
		},
	},
})

var ocdWalker = tlv.MustNew(tlv.Config{
	Protocol:    "docsis_ocd",
	TagWidth:    1,
	LengthWidth: 1,
	Endian:      cursor.BigEndian,
	Records: map[uint64]tlv.Record{
		0: {Name: "Discrete Fourier Transform Size", Handler: tlv.FixedUint("DFT Size", 1, dftSizes)},
		1: {Name: "Cyclic Prefix", Handler: tlv.FixedUint("Cyclic Prefix", 1, cyclicPrefixes)},
		2: {Name: "Roll-off Period", Handler: tlv.FixedUint("Roll-off Period", 1, rollOffPeriods)},
		3: {Name: "OFDM Spectrum Location", Handler: tlv.FixedUint("Spectrum Location", 4, nil, codec.Unit(" Hz"))},
		4: {Name: "Time Interleaving Depth", Handler: tlv.FixedUint("Time Interleaving Depth", 1, nil)},
		tagSubcarrierAssignment: {
			Name:    "Subcarrier Assignment Range/List",
			Handler: subcarrierAssignment(codec.Bit{Label: "Subcarrier Usage", Mask: 0x1F, Values: subcarrierUsages}),
		},
		6: {Name: "Primary Capable", Handler: tlv.FixedUint("Primary Capable", 1, yesNo)},
	},
})

func dissectDPD(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var ids [3]uint64
	for i, label := range []string{"Downstream Channel ID", "Profile Identifier", "Configuration Change Count"} {
		f, err := codec.DecodeUint(cur, 1, cursor.BigEndian, label)
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		ids[i] = f.Value.(uint64)
	}
	dc.SetInfo("DPD: DCID %d, Profile %d, CCC %d", ids[0], ids[1], ids[2])
	dpdWalker.Walk(dc, cur, tree)
	return nil
}

func dissectOCD(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var ids [2]uint64
	for i, label := range []string{"Downstream Channel ID", "Configuration Change Count"} {
		f, err := codec.DecodeUint(cur, 1, cursor.BigEndian, label)
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		ids[i] = f.Value.(uint64)
	}
	dc.SetInfo("OCD: DCID %d, CCC %d", ids[0], ids[1])
	ocdWalker.Walk(dc, cur, tree)
	return nil
}

// subcarrierAssignment decodes a control byte followed by either a
// start/end range or a list of subcarrier indices. low names the bits
// below the assignment type.
func subcarrierAssignment(low codec.Bit) dissector.HandlerFunc {
	return func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		ctl, err := codec.DecodeBitGroup(cur, 1, cursor.BigEndian, "Assignment", []codec.Bit{
			{Label: "Assignment Type", Mask: 0xC0, Values: assignmentTypes},
			low,
		})
		if err != nil {
			return err
		}
		tree.Add(ctl)

		switch ctl.Value.(uint64) >> 6 {
		case assignRangeContinuous, assignRangeSkip:
			if cur.Remaining() != 4 {
				return tlv.WrongLength(cur, tree, 5)
			}
			for _, label := range []string{"Subcarrier Start", "Subcarrier End"} {
				f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, label)
				if err := codec.Add(tree, f, err); err != nil {
					return err
				}
			}
		case assignList:
			if cur.Remaining() == 0 || cur.Remaining()%2 != 0 {
				return tlv.WrongLength(cur, tree, cur.Consumed()+cur.Remaining()+1)
			}
			for i := 0; cur.Remaining() > 0; i++ {
				if err := dc.Step(cur.Offset()); err != nil {
					return err
				}
				f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, fmt.Sprintf("Subcarrier %d", i))
				if err := codec.Add(tree, f, err); err != nil {
					return err
				}
			}
		default:
			f, _ := codec.DecodeFixedBytes(cur, cur.Remaining(), "Value")
			tree.Add(f)
			tree.Note(field.ReasonMalformed, ctl.Range.Start, "reserved assignment type")
		}
		return nil
	}
}

// assignmentVector decodes a starting subcarrier followed by one 4-bit
// modulation per subcarrier, two to a byte.
func assignmentVector(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	start, err := codec.DecodeBitGroup(cur, 2, cursor.BigEndian, "Subcarrier Start", []codec.Bit{
		{Label: "Oddness", Mask: 0x8000, Values: codec.ValueMap{0: "even", 1: "odd"}},
		{Label: "Start Subcarrier", Mask: 0x1FFF},
	})
	if err != nil {
		return err
	}
	tree.Add(start)
	sub := start.Value.(uint64) & 0x1FFF
	for cur.Remaining() > 0 {
		at := cur.Offset()
		if err := dc.Step(at); err != nil {
			return err
		}
		for _, nibble := range []struct {
			mask  uint8
			shift uint
		}{{0xF0, 4}, {0x0F, 0}} {
			f, err := codec.DecodeBitfield(cur, at, nibble.mask, nibble.shift, fmt.Sprintf("Subcarrier %d", sub), modulations)
			if err := codec.Add(tree, f, err); err != nil {
				return err
			}
			sub++
		}
		if err := cur.Advance(1); err != nil {
			return err
		}
	}
	return nil
}
