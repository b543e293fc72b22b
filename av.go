// Audio and video codec parsing
// Only the few header bytes needed to identify codec,
// sample rate, channels and resolution are interpreted

package main

/* Consts */

const AUDIO_CODEC_AAC = 10
const AUDIO_CODEC_OPUS = 13

const VIDEO_CODEC_H264 = 7
const VIDEO_CODEC_HEVC = 12

var AUDIO_CODEC_NAME = []string{
	"",
	"ADPCM",
	"MP3",
	"LinearLE",
	"Nellymoser16",
	"Nellymoser8",
	"Nellymoser",
	"G711A",
	"G711U",
	"",
	"AAC",
	"Speex",
	"",
	"OPUS",
	"MP3-8K",
	"DeviceSpecific",
	"Uncompressed",
}

var AUDIO_SOUND_RATE = []uint32{
	5512, 11025, 22050, 44100,
}

var VIDEO_CODEC_NAME = []string{
	"",
	"Jpeg",
	"Sorenson-H263",
	"ScreenVideo",
	"On2-VP6",
	"On2-VP6-Alpha",
	"ScreenVideo2",
	"H264",
	"",
	"",
	"",
	"",
	"H265",
}

// Audio track description, parsed from the
// first byte of an audio message and, for AAC,
// from the AudioSpecificConfig
type AudioCodecInfo struct {
	codec       uint32
	codec_name  string
	sample_rate uint32
	channels    uint32
	profile     string
}

// Video track description, parsed from the
// AVC / HEVC sequence header
type VideoCodecInfo struct {
	codec      uint32
	codec_name string
	width      uint32
	height     uint32
	level      float32
	profile    string
}

func getAudioCodecName(codec uint32) string {
	if int(codec) < len(AUDIO_CODEC_NAME) {
		return AUDIO_CODEC_NAME[codec]
	}
	return ""
}

func getVideoCodecName(codec uint32) string {
	if int(codec) < len(VIDEO_CODEC_NAME) {
		return VIDEO_CODEC_NAME[codec]
	}
	return ""
}

// Parses the first byte of an audio message:
// high nibble = codec, bits 3-2 = rate enum,
// bit 1 = sample size, bit 0 = mono/stereo flag
// payload - The audio message payload
// Returns the track description
func parseAudioFirstByte(payload []byte) AudioCodecInfo {
	info := AudioCodecInfo{}

	if len(payload) < 1 {
		return info
	}

	first := payload[0]

	info.codec = uint32(first>>4) & 0x0f
	info.codec_name = getAudioCodecName(info.codec)

	rateIndex := (first >> 2) & 0x03
	info.sample_rate = AUDIO_SOUND_RATE[rateIndex]

	if first&0x01 != 0 {
		info.channels = 2
	} else {
		info.channels = 1
	}

	// Codecs with a fixed sample rate
	switch info.codec {
	case 4, 11:
		info.sample_rate = 16000
	case 5, 14:
		info.sample_rate = 8000
	}

	return info
}

/* AAC (Advanced Audio Coding) */

var AAC_SAMPLE_RATE = []uint32{
	96000, 88200, 64000, 48000,
	44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000,
	7350, 0, 0, 0,
}

var AAC_CHANNELS = []uint32{
	0, 1, 2, 3, 4, 5, 6, 8,
}

type AACSpecificConfig struct {
	object_type    uint32
	sample_rate    uint32
	sampling_index byte
	chan_config    uint32
	channels       uint32
	sbr            int32
	ps             int32
}

func getAudioObjectType(bitop *Bitop) uint32 {
	r := bitop.Read(5)
	if r == 31 {
		r = bitop.Read(6) + 32
	}
	return r
}

func getAudioSampleRate(bitop *Bitop, sampling_index byte) uint32 {
	if sampling_index == 0x0f {
		return bitop.Read(24)
	} else if int(sampling_index) < len(AAC_SAMPLE_RATE) {
		return AAC_SAMPLE_RATE[sampling_index]
	} else {
		return 0
	}
}

// Parses the AudioSpecificConfig carried in an
// AAC sequence header (after the 2 FLV audio bytes)
// aacSequenceHeader - The full sequence header payload
func readAACSpecificConfig(aacSequenceHeader []byte) AACSpecificConfig {
	res := AACSpecificConfig{
		sbr: -1,
		ps:  -1,
	}
	bitop := createBitop(aacSequenceHeader)

	bitop.Read(16)

	res.object_type = getAudioObjectType(&bitop)
	res.sampling_index = byte(bitop.Read(4))
	res.sample_rate = getAudioSampleRate(&bitop, res.sampling_index)
	res.chan_config = bitop.Read(4)

	if int(res.chan_config) < len(AAC_CHANNELS) {
		res.channels = AAC_CHANNELS[res.chan_config]
	}

	if res.object_type == 5 || res.object_type == 29 {
		if res.object_type == 29 {
			res.ps = 1
		}
		res.sbr = 1
		res.sampling_index = byte(bitop.Read(4))
		res.sample_rate = getAudioSampleRate(&bitop, res.sampling_index)
		res.object_type = getAudioObjectType(&bitop)
	}

	return res
}

func getAACProfileName(info AACSpecificConfig) string {
	switch info.object_type {
	case 1:
		return "Main"
	case 2:
		if info.ps > 0 {
			return "HEv2"
		}
		if info.sbr > 0 {
			return "HE"
		}
		return "LC"
	case 3:
		return "SSR"
	case 4:
		return "LTP"
	case 5:
		return "SBR"
	default:
		return ""
	}
}

/* H264 */

// Parses the SPS inside an AVCDecoderConfigurationRecord
// avcSequenceHeader - The full sequence header payload
// Returns the video track description
func readH264SpecificConfig(avcSequenceHeader []byte) VideoCodecInfo {
	info := VideoCodecInfo{
		codec:      VIDEO_CODEC_H264,
		codec_name: getVideoCodecName(VIDEO_CODEC_H264),
	}

	bitop := createBitop(avcSequenceHeader)

	bitop.Read(48)

	profile := byte(bitop.Read(8))
	bitop.Read(8) // compat
	info.level = float32(bitop.Read(8)) / 10.0
	info.profile = getH264ProfileName(profile)

	bitop.Read(8) // NALU length size
	nb_sps := byte(bitop.Read(8)) & 0x1F

	if nb_sps == 0 {
		return info
	}

	bitop.Read(16) // NAL size
	nt := bitop.Read(8)

	if nt != 0x67 {
		return info
	}

	/* SPS */
	profile_idc := bitop.Read(8)
	bitop.Read(8)      /* Flags */
	bitop.Read(8)      /* Level */
	bitop.ReadGolomb() /* SPS ID */

	if profile_idc == 100 || profile_idc == 110 || profile_idc == 122 || profile_idc == 244 ||
		profile_idc == 44 || profile_idc == 83 || profile_idc == 86 || profile_idc == 118 {
		cf_idc := bitop.ReadGolomb()

		if cf_idc == 3 {
			/* separate color plane */
			bitop.Read(1)
		}

		/* bit depth luma - 8 */
		bitop.ReadGolomb()

		/* bit depth chroma - 8 */
		bitop.ReadGolomb()

		/* qpprime y zero transform bypass */
		bitop.Read(1)

		/* seq scaling matrix present */
		if bitop.Read(1) != 0 {
			if cf_idc == 3 {
				bitop.Read(12)
			} else {
				bitop.Read(8)
			}
		}
	}

	/* log2 max frame num */
	bitop.ReadGolomb()

	/* pic order cnt type */
	switch bitop.ReadGolomb() {
	case 0:
		/* max pic order cnt */
		bitop.ReadGolomb()
	case 1:
		/* delta pic order always zero */
		bitop.Read(1)

		/* offset for non-ref pic */
		bitop.ReadGolomb()

		/* offset for top to bottom field */
		bitop.ReadGolomb()

		/* num ref frames in pic order */
		numRefFrames := bitop.ReadGolomb()

		for n := uint32(0); n < numRefFrames; n++ {
			/* offset for ref frame */
			bitop.ReadGolomb()
		}
	}

	/* num ref frames */
	bitop.ReadGolomb()

	/* gaps in frame num allowed */
	bitop.Read(1)

	/* pic width in mbs - 1 */
	width := bitop.ReadGolomb()

	/* pic height in map units - 1 */
	height := bitop.ReadGolomb()

	/* frame mbs only flag */
	frame_mbs_only := bitop.Read(1)

	if frame_mbs_only == 0 {
		/* mbs adaptive frame field */
		bitop.Read(1)
	}

	/* direct 8x8 inference flag */
	bitop.Read(1)

	/* frame cropping */
	var crop_left uint32
	var crop_right uint32
	var crop_top uint32
	var crop_bottom uint32

	if bitop.Read(1) != 0 {
		crop_left = bitop.ReadGolomb()
		crop_right = bitop.ReadGolomb()
		crop_top = bitop.ReadGolomb()
		crop_bottom = bitop.ReadGolomb()
	}

	info.width = (width+1)*16 - (crop_left+crop_right)*2
	info.height = (2-frame_mbs_only)*(height+1)*16 - (crop_top+crop_bottom)*2

	return info
}

func getH264ProfileName(profile byte) string {
	switch profile {
	case 66:
		return "Baseline"
	case 77:
		return "Main"
	case 100:
		return "High"
	default:
		return ""
	}
}

/* HEVC */

type hevcSPSInfo struct {
	pic_width_in_luma_samples  uint32
	pic_height_in_luma_samples uint32
	conf_win_left_offset       uint32
	conf_win_right_offset      uint32
	conf_win_top_offset        uint32
	conf_win_bottom_offset     uint32
}

// Skips the profile_tier_level structure
func hevcSkipPtl(bitop *Bitop, max_sub_layers_minus1 uint32) {
	bitop.Read(2)  // profile space
	bitop.Read(1)  // tier flag
	bitop.Read(5)  // profile idc
	bitop.Read(32) // compatibility flags
	bitop.Read(4)  // source / constraint flags
	bitop.Read(32)
	bitop.Read(12)
	bitop.Read(8) // level idc

	profile_present := make([]byte, 0)
	level_present := make([]byte, 0)

	for i := uint32(0); i < max_sub_layers_minus1; i++ {
		profile_present = append(profile_present, byte(bitop.Read(1)))
		level_present = append(level_present, byte(bitop.Read(1)))
	}

	if max_sub_layers_minus1 > 0 {
		for i := max_sub_layers_minus1; i < 8; i++ {
			bitop.Read(2)
		}
	}

	for i := 0; i < int(max_sub_layers_minus1); i++ {
		if profile_present[i] != 0 {
			bitop.Read(2 + 1 + 5 + 32 + 4)
			bitop.Read(32)
			bitop.Read(12)
		}
		if level_present[i] != 0 {
			bitop.Read(8)
		}
	}
}

// Parses an HEVC SPS NAL unit for the picture dimensions
func hevcParseSPS(buf []byte) hevcSPSInfo {
	sps := hevcSPSInfo{}
	bitop := createBitop(buf)

	bitop.Read(1) // forbidden_zero_bit
	bitop.Read(6) // nal_unit_type
	bitop.Read(6) // nuh_reserved_zero_6bits
	bitop.Read(3) // nuh_temporal_id_plus1

	// Strip emulation prevention bytes
	rbsp := make([]byte, 0, len(buf))
	for i := 2; i < len(buf); i++ {
		if i+2 < len(buf) && bitop.Look(24) == 0x000003 {
			rbsp = append(rbsp, byte(bitop.Read(8)))
			rbsp = append(rbsp, byte(bitop.Read(8)))
			i += 2
			bitop.Read(8)
		} else {
			rbsp = append(rbsp, byte(bitop.Read(8)))
		}
	}

	r := createBitop(rbsp)

	r.Read(4) // sps_video_parameter_set_id
	max_sub_layers_minus1 := r.Read(3)
	r.Read(1) // sps_temporal_id_nesting_flag
	hevcSkipPtl(&r, max_sub_layers_minus1)
	r.ReadGolomb() // sps_seq_parameter_set_id
	chroma_format_idc := r.ReadGolomb()
	if chroma_format_idc == 3 {
		r.Read(1) // separate_colour_plane_flag
	}
	sps.pic_width_in_luma_samples = r.ReadGolomb()
	sps.pic_height_in_luma_samples = r.ReadGolomb()

	if r.Read(1) != 0 {
		var vert_mult uint32 = 1
		var horiz_mult uint32 = 1

		if chroma_format_idc < 2 {
			vert_mult = 2
		}
		if chroma_format_idc < 3 {
			horiz_mult = 2
		}

		sps.conf_win_left_offset = r.ReadGolomb() * horiz_mult
		sps.conf_win_right_offset = r.ReadGolomb() * horiz_mult
		sps.conf_win_top_offset = r.ReadGolomb() * vert_mult
		sps.conf_win_bottom_offset = r.ReadGolomb() * vert_mult
	}

	return sps
}

// Parses an HEVCDecoderConfigurationRecord
// hevcSequenceHeader - The full sequence header payload
// Returns the video track description
func readHEVCSpecificConfig(hevcSequenceHeader []byte) VideoCodecInfo {
	info := VideoCodecInfo{
		codec:      VIDEO_CODEC_HEVC,
		codec_name: getVideoCodecName(VIDEO_CODEC_HEVC),
	}

	if len(hevcSequenceHeader) < 28 {
		return info
	}

	record := hevcSequenceHeader[5:]

	if record[0] != 1 {
		// Unknown configuration version
		return info
	}

	profile_idc := uint32(record[1]) & 0x1F
	level_idc := uint32(record[12])

	info.profile = getHEVCProfileName(profile_idc)
	info.level = float32(level_idc) / 30.0

	numOfArrays := int(record[22])
	p := record[23:]
	for i := 0; i < numOfArrays; i++ {
		if len(p) < 3 {
			break
		}
		nalutype := p[0]
		n := (uint32(p[1]) << 8) | uint32(p[2])
		p = p[3:]
		for j := 0; j < int(n); j++ {
			if len(p) < 2 {
				break
			}
			k := (uint32(p[0]) << 8) | uint32(p[1])
			if len(p) < 2+int(k) {
				break
			}
			p = p[2:]
			if nalutype == 33 {
				// SPS
				sps := hevcParseSPS(p[0:k])
				info.width = sps.pic_width_in_luma_samples - (sps.conf_win_left_offset + sps.conf_win_right_offset)
				info.height = sps.pic_height_in_luma_samples - (sps.conf_win_top_offset + sps.conf_win_bottom_offset)
			}
			p = p[k:]
		}
	}

	return info
}

func getHEVCProfileName(profile uint32) string {
	switch profile {
	case 1:
		return "Main"
	case 2:
		return "Main 10"
	case 3:
		return "Main Still Picture"
	default:
		return ""
	}
}

// Parses a video sequence header for either codec
// sequenceHeader - The full sequence header payload
func readVideoSpecificConfig(sequenceHeader []byte) VideoCodecInfo {
	codec_id := sequenceHeader[0] & 0x0f

	switch codec_id {
	case VIDEO_CODEC_H264:
		return readH264SpecificConfig(sequenceHeader)
	case VIDEO_CODEC_HEVC:
		return readHEVCSpecificConfig(sequenceHeader)
	default:
		return VideoCodecInfo{
			codec:      uint32(codec_id),
			codec_name: getVideoCodecName(uint32(codec_id)),
		}
	}
}
