package tof

// Parameter names. These strings are the contract with stored client
// configuration and must not change.
const (
	PixCntMaxSetFailed = "pix_cnt_max_set_failed"
	PixCntMax          = "pix_cnt_max"
	QuadCntMax         = "quad_cnt_max"
	SubFrameCntMax     = "sub_frame_cnt_max"
	SysClkFreq         = "sys_clk_freq"

	TGEn        = "tg_en"
	BlkSize     = "blk_size"
	BlkHeaderEn = "blk_header_en"
	OpCSPol     = "op_cs_pol"
	FBReadyEn   = "fb_ready_en"

	ConfidenceThreshold = "confidence_threshold"

	IllumEnPol = "illum_en_pol"

	BinRowsToMerge = "rows_to_merge"
	BinColsToMerge = "cols_to_merge"
	BinRowCount    = "bin_row_count"
	BinColumnCount = "bin_col_count"
	BinningEn      = "binning_en"

	RowStart = "row_start"
	RowEnd   = "row_end"
	ColStart = "col_start"
	ColEnd   = "col_end"

	DebugEn = "debug_en"

	PixelDataSize     = "pixel_data_size"
	OpDataArrangeMode = "op_data_arrange_mode"
	HistogramEn       = "histogram_en"

	IntgTime               = "intg_time"
	IntgDutyCycle          = "intg_duty_cycle"
	IntgDutyCycleSetFailed = "intg_duty_cycle_set_failed"
	ModFreq1               = "mod_freq1"
	ModFreq2               = "mod_freq2"
	VCOFreq                = "vco_freq"
	ModPS1                 = "mod_ps1"
	ModPS2                 = "mod_ps2"
	ModM                   = "mod_m"
	ModN                   = "mod_n"
	ModPLLUpdate           = "mod_pll_update"

	MA                   = "ma"
	MB                   = "mb"
	K0                   = "ka"
	DealiasEn            = "dealias_en"
	Dealias16BitOpEnable = "dealias_16bit_op_enable"
	DealiasedPhaseMask   = "dealiased_ph_mask"

	PhaseCorr1        = "phase_corr_1"
	PhaseCorr2        = "phase_corr_2"
	TIllumCalib       = "tillum_calib"
	TSensorCalib      = "tsensor_calib"
	CoeffIllum1       = "coeff_illum_1"
	CoeffIllum2       = "coeff_illum_2"
	CoeffSensor1      = "coeff_sensor_1"
	CoeffSensor2      = "coeff_sensor_2"
	DisableOffsetCorr = "disable_offset_corr"
	DisableTempCorr   = "disable_temp_corr"
	CalibPrec         = "calib_prec"

	ToFFrameType  = "output_mode"
	SoftwareReset = "software_reset"

	UnambiguousRange = "unambiguous_range"

	IllumPower           = "illum_power"
	IllumPowerPercentage = "illum_power_percentage"
)

// SpeedOfLight in metres per second.
const SpeedOfLight = 299792458.0

// VendorID is the USB vendor identifier of Texas Instruments.
const VendorID uint16 = 0x0451
