package mapper

// mimeByExtension resolves the mimetype element for document nodes from the
// file extension. Unknown extensions fall back to application/octet-stream.
var mimeByExtension = map[string]string{
	"dwg": "application/x-acad", "arj": "application/x-arj-compressed",
	"tgz": "application/x-compressed", "cpio": "application/x-cpio",
	"csh": "application/x-csh", "dvi": "application/x-dvi",
	"emf": "application/x-emf", "exe": "application/x-exe",
	"gtar": "application/x-gtar", "gz": "application/x-gzip",
	"zip": "application/x-zip-compressed", "hdf": "application/x-hdf",
	"js": "application/x-javascript", "latex": "application/x-latex",
	"mif": "application/x-mif", "nc": "application/x-netcdf",
	"cdf": "application/x-netcdf", "msg": "application/x-outlook-msg",
	"pdf": "application/x-pdf", "xls": "application/x-msexcel",
	"ppt": "application/x-mspowerpoint", "rar": "application/x-rar-compressed",
	"sh": "application/x-sh", "tar": "application/x-tar",
	"tcl": "application/x-tcl", "tex": "application/x-tex",
	"texinfo": "application/x-texinfo", "tif": "image/x-tiff",
	"tiff": "image/x-tiff", "png": "application/x-png",
	"bmp": "application/x-bmp", "jpg": "image/jpeg", "jpeg": "image/jpeg",
	"gif": "image/gif", "avi": "video/x-msvideo", "mov": "video/x-sgi-movie",
	"flv": "video/x-flv", "mp3": "audio/x-mpeg", "wav": "audio/x-wav",
	"doc": "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}
