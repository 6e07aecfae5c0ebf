package k4

import "synthmcp/param"

// Offsets into the 130-byte single body (the checksum is byte 130).
const (
	nameOffset   = 0
	nameLen      = 10
	muteOffset   = 14
	levelOffset  = 58
	sourceCount  = 4
	filterCount  = 2
	bodySize     = 130
	checksumSize = 1
	recordSize   = bodySize + checksumSize
)

// singleTable is the K4 single patch layout after the 10-byte name.
var singleTable = param.MustTable(bodySize,
	param.Skip(nameOffset, nameLen),
	param.At(10, param.Byte("volume", 100)),
	param.At(11, param.Byte("effect", 31)),
	param.At(12, param.Bits("outselect", 0, 3, 7)),
	param.At(13,
		param.Bits("sourcemode", 0, 2, 2),
		param.Bits("polymode", 2, 2, 3),
		param.Flag("am12", 4),
		param.Flag("am34", 5),
	),
	param.At(muteOffset,
		param.Flag("s1mute", 0),
		param.Flag("s2mute", 1),
		param.Flag("s3mute", 2),
		param.Flag("s4mute", 3),
		param.Bits("vibshape", 4, 2, 3),
	),
	param.At(15, param.Bits("pitchbend", 0, 4, 12), param.Bits("wheelassign", 4, 2, 2)),
	param.At(16, param.Byte("vibspeed", 100)),
	param.At(17, param.Byte("wheeldepth", 100)),
	param.At(18, param.Byte("autobendtime", 100)),
	param.At(19, param.Byte("autobenddepth", 100)),
	param.At(20, param.Byte("autobendkstime", 100)),
	param.At(21, param.Byte("autobendveldepth", 100)),
	param.At(22, param.Byte("vibpressure", 100)),
	param.At(23, param.Byte("vibdepth", 100)),
	param.At(24, param.Bits("lfoshape", 0, 2, 3)),
	param.At(25, param.Byte("lfospeed", 100)),
	param.At(26, param.Byte("lfodelay", 100)),
	param.At(27, param.Byte("lfodepth", 100)),
	param.At(28, param.Byte("lfopressure", 100)),
	param.At(29, param.Byte("pressurefreq", 100)),

	// Sources 1..4 are interleaved: one byte per source for each parameter.
	param.Repeat(30, sourceCount, 1, 1, param.Byte("s%ddelay", 100)),
	param.Repeat(34, sourceCount, 1, 1,
		param.Bits("s%dwave", 0, 1, 255).High(7),
		param.Bits("s%dkscurve", 4, 3, 7),
	),
	param.Repeat(38, sourceCount, 1, 1, param.Bits("s%dwave", 0, 7, 255)),
	param.Repeat(42, sourceCount, 1, 1,
		param.Bits("s%dcoarse", 0, 6, 48),
		param.Flag("s%dkeytrack", 6),
	),
	param.Repeat(46, sourceCount, 1, 1, param.Bits("s%dfixkey", 0, 7, 127)),
	param.Repeat(50, sourceCount, 1, 1, param.Byte("s%dfine", 100)),
	param.Repeat(54, sourceCount, 1, 1,
		param.Flag("s%dpressurefreq", 0),
		param.Flag("s%dvibbend", 1),
		param.Bits("s%dvelcurve", 2, 3, 7),
	),
	param.Repeat(levelOffset, sourceCount, 1, 1, param.Byte("s%dlevel", 100)),
	param.Repeat(62, sourceCount, 1, 1, param.Byte("s%dattack", 100)),
	param.Repeat(66, sourceCount, 1, 1, param.Byte("s%ddecay", 100)),
	param.Repeat(70, sourceCount, 1, 1, param.Byte("s%dsustain", 100)),
	param.Repeat(74, sourceCount, 1, 1, param.Byte("s%drelease", 100)),
	param.Repeat(78, sourceCount, 1, 1, param.Byte("s%dlevelvel", 100)),
	param.Repeat(82, sourceCount, 1, 1, param.Byte("s%dlevelpressure", 100)),
	param.Repeat(86, sourceCount, 1, 1, param.Byte("s%dlevelks", 100)),
	param.Repeat(90, sourceCount, 1, 1, param.Byte("s%dtimeonvel", 100)),
	param.Repeat(94, sourceCount, 1, 1, param.Byte("s%dtimeoffvel", 100)),
	param.Repeat(98, sourceCount, 1, 1, param.Byte("s%dtimeks", 100)),

	// DCF 1 serves sources 1+2, DCF 2 serves sources 3+4.
	param.Repeat(102, filterCount, 1, 1, param.Byte("f%dcutoff", 100)),
	param.Repeat(104, filterCount, 1, 1,
		param.Bits("f%dresonance", 0, 3, 7),
		param.Flag("f%dlfo", 3),
	),
	param.Repeat(106, filterCount, 1, 1, param.Byte("f%dcutoffvel", 100)),
	param.Repeat(108, filterCount, 1, 1, param.Byte("f%dcutoffpressure", 100)),
	param.Repeat(110, filterCount, 1, 1, param.Byte("f%dcutoffks", 100)),
	param.Repeat(112, filterCount, 1, 1, param.Byte("f%denvdepth", 100)),
	param.Repeat(114, filterCount, 1, 1, param.Byte("f%denvvel", 100)),
	param.Repeat(116, filterCount, 1, 1, param.Byte("f%dattack", 100)),
	param.Repeat(118, filterCount, 1, 1, param.Byte("f%ddecay", 100)),
	param.Repeat(120, filterCount, 1, 1, param.Byte("f%dsustain", 100)),
	param.Repeat(122, filterCount, 1, 1, param.Byte("f%drelease", 100)),
	param.Repeat(124, filterCount, 1, 1, param.Byte("f%dtimeonvel", 100)),
	param.Repeat(126, filterCount, 1, 1, param.Byte("f%dtimeoffvel", 100)),
	param.Repeat(128, filterCount, 1, 1, param.Byte("f%dtimeks", 100)),
)
